package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/lumenloft/doorman/internal/models"
)

func TestRenderMessage(t *testing.T) {
	tests := []struct {
		name     string
		n        *models.Notification
		contains string
	}{
		{
			"payment received",
			&models.Notification{Type: models.NotificationTypePaymentReceived},
			"Payment received",
		},
		{
			"grace with deadline",
			&models.Notification{
				Type:     models.NotificationTypeGraceStarted,
				Metadata: datatypes.JSONMap{"grace_until": "2025-01-03T00:00:00Z"},
			},
			"until 2025-01-03T00:00:00Z",
		},
		{
			"grace without deadline",
			&models.Notification{Type: models.NotificationTypeGraceStarted},
			"Renew within",
		},
		{
			"expired",
			&models.Notification{Type: models.NotificationTypeExpired},
			"access was removed",
		},
		{
			// JSON round-trips numbers as float64.
			"reminder with days",
			&models.Notification{
				Type:     models.NotificationTypeReminder,
				Metadata: datatypes.JSONMap{"days_left": float64(2)},
			},
			"2 day",
		},
		{
			"reminder without days",
			&models.Notification{Type: models.NotificationTypeReminder},
			"about to end",
		},
		{
			"unknown type",
			&models.Notification{Type: models.NotificationType("something_else")},
			"update on your subscription",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Contains(t, renderMessage(tt.n), tt.contains)
		})
	}
}
