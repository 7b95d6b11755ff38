package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/finance-saas/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/finance-saas/internal/models"
)

type MockChannel struct {
	mock.Mock
}

func (m *MockChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	args := m.Called(exchange, key, mandatory, immediate, msg)
	return args.Error(0)
}

func TestQueue_Send(t *testing.T) {
	userID := uuid.New()
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		publishErr error
		wantErr    bool
	}{
		{name: "published"},
		{name: "broker error", publishErr: errors.New("channel closed"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := new(MockChannel)
			ch.On("Publish", rabbitmq.ExchangeNotifications, rabbitmq.RoutingKeyTrial, false, false,
				mock.MatchedBy(func(p amqp.Publishing) bool {
					var n models.Notification
					if err := json.Unmarshal(p.Body, &n); err != nil {
						return false
					}
					return n.UserID == userID && n.TemplateID == "trial_1_day" &&
						n.Params["email"] == "ana@example.ao" && n.CreatedAt.Equal(now) &&
						p.DeliveryMode == amqp.Persistent
				}),
			).Return(tt.publishErr).Once()

			q := NewQueue(ch, rabbitmq.RoutingKeyTrial)
			q.now = func() time.Time { return now }

			err := q.Send(context.Background(), userID, "trial_1_day", map[string]any{"email": "ana@example.ao"})
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			ch.AssertExpectations(t)
		})
	}
}

func TestQueue_Send_CancelledContext(t *testing.T) {
	ch := new(MockChannel)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewQueue(ch, rabbitmq.RoutingKeyPayment).Send(ctx, uuid.New(), "trial_today", nil)
	require.ErrorIs(t, err, context.Canceled)
	ch.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestLog_Send(t *testing.T) {
	var buf bytes.Buffer
	l := NewLog(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, l.Send(context.Background(), uuid.New(), "trial_expired", map[string]any{"daysLeft": 0}))
	assert.Contains(t, buf.String(), `"template":"trial_expired"`)
}
