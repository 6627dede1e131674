package finalizer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lumenloft/doorman/internal/platform/telegram"
	cfgpkg "github.com/lumenloft/doorman/pkg/config"
	"github.com/lumenloft/doorman/pkg/logctx"
	"github.com/lumenloft/doorman/pkg/metrics"
)

type Outcome string

const (
	// OutcomeGranted: the platform confirmed the access grant.
	OutcomeGranted Outcome = "granted"
	// OutcomePending: retries exhausted; the user keeps a valid subscription
	// and can recover through the self-service path at any time.
	OutcomePending Outcome = "pending"
	// OutcomeFailed: a fatal platform answer (no pending request, forbidden);
	// more retries cannot succeed.
	OutcomeFailed Outcome = "failed"
)

// BackoffSchedule is the explicit, finite retry plan. Attempt state lives in
// the per-user task, not in a doubling sleep variable, so a task can report
// exactly where it stopped.
var BackoffSchedule = []time.Duration{
	500 * time.Millisecond,
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
	32 * time.Second,
	64 * time.Second,
}

// AccessChecker re-validates the subscription before fallback paths mint an
// invite.
type AccessChecker interface {
	HasAccess(ctx context.Context, userID int64) (bool, error)
}

// PassBurner consumes one-shot whitelist passes, the comped-entry path that
// admits a user without a paid window.
type PassBurner interface {
	Burn(ctx context.Context, telegramID int64) (bool, error)
}

// EventLogger records funnel events for the approve/retry trail.
type EventLogger interface {
	LogUser(ctx context.Context, userID int64, eventType string, metadata map[string]any)
}

// Service turns "user has valid access" into a confirmed grant on the
// platform. Finalization failure is never silently fatal to a paying user:
// exhausted retries leave the user Pending and the self-service path can
// always recover.
type Service struct {
	cfg    *cfgpkg.Config
	log    *zap.SugaredLogger
	m      *metrics.Metrics
	tg     telegram.Client
	access AccessChecker
	passes PassBurner
	events EventLogger

	mu       sync.Mutex
	inflight map[int64]struct{}
}

func New(cfg *cfgpkg.Config, log *zap.SugaredLogger, m *metrics.Metrics, tg telegram.Client, access AccessChecker, passes PassBurner, events EventLogger) *Service {
	return &Service{
		cfg:      cfg,
		log:      log,
		m:        m,
		tg:       tg,
		access:   access,
		passes:   passes,
		events:   events,
		inflight: make(map[int64]struct{}),
	}
}

// Finalize attempts the grant with bounded backoff. Only retryable failures
// consume schedule slots; a fatal answer terminates immediately. A
// rate-limit answer waits at least the server-mandated interval.
func (s *Service) Finalize(ctx context.Context, userID int64) (Outcome, error) {
	log := logctx.FromCtx(ctx, s.log).With("user_id", userID)

	var lastErr error
	for attempt := 0; attempt < len(BackoffSchedule); attempt++ {
		err := s.tg.ApproveJoinRequest(ctx, s.cfg.Telegram.GroupChatID, userID)
		if err == nil {
			log.Infow("join request approved", "attempt", attempt)
			s.events.LogUser(ctx, userID, "approve_ok", map[string]any{"attempt": attempt})
			s.m.FinalizeOutcomes.WithLabelValues(string(OutcomeGranted)).Inc()
			return OutcomeGranted, nil
		}

		if !telegram.Retryable(err) {
			log.Infow("join approval cannot succeed", "attempt", attempt, "err", err)
			s.events.LogUser(ctx, userID, "approve_fatal", map[string]any{
				"attempt": attempt, "error": err.Error(),
			})
			s.m.FinalizeOutcomes.WithLabelValues(string(OutcomeFailed)).Inc()
			return OutcomeFailed, err
		}

		lastErr = err
		delay := BackoffSchedule[attempt]
		var ra *telegram.RetryAfterError
		if errors.As(err, &ra) && ra.After > delay {
			delay = ra.After
		}
		log.Warnw("join approval retry", "attempt", attempt, "delay", delay, "err", err)
		s.events.LogUser(ctx, userID, "approve_retry", map[string]any{
			"attempt": attempt, "error": err.Error(),
		})
		s.m.FinalizeRetries.Inc()

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.m.FinalizeOutcomes.WithLabelValues(string(OutcomePending)).Inc()
			return OutcomePending, ctx.Err()
		case <-timer.C:
		}
	}

	log.Errorw("join approval attempts exhausted", "attempts", len(BackoffSchedule))
	s.events.LogUser(ctx, userID, "approve_exhausted", map[string]any{
		"attempts": len(BackoffSchedule),
	})
	s.m.FinalizeOutcomes.WithLabelValues(string(OutcomePending)).Inc()
	return OutcomePending, fmt.Errorf("finalize access for user %d: %w", userID, lastErr)
}

// Launch runs Finalize as a detached per-user task. The backoff waits
// suspend only this user's task; ingestion of other payments is never
// blocked. A task already in flight for the user absorbs the new request.
func (s *Service) Launch(userID int64) bool {
	s.mu.Lock()
	if _, busy := s.inflight[userID]; busy {
		s.mu.Unlock()
		return false
	}
	s.inflight[userID] = struct{}{}
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.inflight, userID)
			s.mu.Unlock()
		}()
		ctx, cancel := context.WithTimeout(context.Background(), taskBudget())
		defer cancel()
		if _, err := s.Finalize(ctx, userID); err != nil {
			s.log.Warnw("finalize task finished with error", "user_id", userID, "err", err)
		}
	}()
	return true
}

// taskBudget bounds a task at the full schedule plus rate-limit slack.
func taskBudget() time.Duration {
	var total time.Duration
	for _, d := range BackoffSchedule {
		total += d
	}
	return total + 2*time.Minute
}

// EnterResult is the outcome of the self-service recovery path.
type EnterResult struct {
	Approved   bool   `json:"approved"`
	InviteLink string `json:"invite_link,omitempty"`
}

// ErrNoAccess is returned by Enter when the subscription is not valid.
var ErrNoAccess = errors.New("finalizer: no valid subscription")

// Enter is the user-initiated fallback: re-check subscription validity, try
// a single approval, and on a missing join request mint a single-use,
// time-limited invite link instead. This is what keeps an exhausted
// finalization recoverable without operator involvement.
func (s *Service) Enter(ctx context.Context, userID int64) (*EnterResult, error) {
	ok, err := s.access.HasAccess(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// A one-shot whitelist pass admits the user exactly once.
		burned, err := s.passes.Burn(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !burned {
			return nil, ErrNoAccess
		}
		s.events.LogUser(ctx, userID, "one_shot_pass_used", nil)
	}

	err = s.tg.ApproveJoinRequest(ctx, s.cfg.Telegram.GroupChatID, userID)
	if err == nil {
		s.events.LogUser(ctx, userID, "enter_approved", nil)
		return &EnterResult{Approved: true}, nil
	}
	if !errors.Is(err, telegram.ErrNoJoinRequest) {
		return nil, fmt.Errorf("approve on enter: %w", err)
	}

	expireAt := time.Now().UTC().Add(s.cfg.InviteTTL())
	link, err := s.tg.CreateInviteLink(ctx, s.cfg.Telegram.GroupChatID, expireAt)
	if err != nil {
		return nil, fmt.Errorf("create invite link: %w", err)
	}
	s.events.LogUser(ctx, userID, "invite_link_created", map[string]any{
		"expire_minutes": s.cfg.InviteTTLMinutes,
	})
	return &EnterResult{InviteLink: link}, nil
}
