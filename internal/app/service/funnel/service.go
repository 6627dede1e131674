package funnel

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lumenloft/doorman/internal/models"
	"github.com/lumenloft/doorman/pkg/logctx"
	"github.com/lumenloft/doorman/pkg/tool"
)

// Service appends analytics funnel events. Writes are asynchronous and
// best-effort: an event is never worth failing a payment for.
type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

func (s *Service) Log(ctx context.Context, userID *int64, eventType string, metadata map[string]any) {
	event := &models.FunnelEvent{
		ID:        tool.GenerateUUIDV7(),
		UserID:    userID,
		EventType: eventType,
		Metadata:  datatypes.JSONMap(metadata),
	}
	go func() {
		if err := s.db.Save(event).Error; err != nil {
			logctx.FromCtx(ctx, s.log).Errorf("failed to save funnel event: %v", err)
		}
	}()
}

// LogUser is Log with a concrete user id.
func (s *Service) LogUser(ctx context.Context, userID int64, eventType string, metadata map[string]any) {
	s.Log(ctx, &userID, eventType, metadata)
}

var Module = fx.Options(
	fx.Provide(New),
)
