package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cfgpkg "github.com/lumenloft/doorman/pkg/config"
	"github.com/lumenloft/doorman/pkg/tool"
)

// Locker hands out single-holder job leases so periodic jobs (reconcile,
// sweep) never run concurrently across instances.
type Locker interface {
	// Acquire takes the named lease for ttl. ok=false means another holder
	// is active. The returned release is safe to call exactly once.
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(), ok bool, err error)
}

type redisLocker struct {
	rdb *redis.Client
	log *zap.SugaredLogger
}

func NewRedisLocker(rdb *redis.Client, log *zap.SugaredLogger) Locker {
	return &redisLocker{rdb: rdb, log: log}
}

// releaseScript deletes the lease only if we still own it, so an expired
// lease taken over by another instance is never released from here.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

func (l *redisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	key := "doorman:lease:" + name
	holder := tool.GenerateUUIDV7()

	ok, err := l.rdb.SetNX(ctx, key, holder, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lease %s: %w", name, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// Background context: the job's context may already be done.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.rdb, []string{key}, holder).Err(); err != nil {
			l.log.Warnw("lease release failed", "lease", name, "err", err)
		}
	}
	return release, true, nil
}

func NewRedisClient(cfg *cfgpkg.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func registerRedisClose(lc fx.Lifecycle, log *zap.SugaredLogger, rdb *redis.Client) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Infow("closing redis connection")
			return rdb.Close()
		},
	})
}

var Module = fx.Options(
	fx.Provide(NewRedisClient),
	fx.Provide(NewRedisLocker),
	fx.Invoke(registerRedisClose),
)
