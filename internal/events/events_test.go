package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"equipment-scheduler/internal/domain"
)

type MockStreamAdder struct {
	mock.Mock
}

func (m *MockStreamAdder) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	args := m.Called(ctx, a)
	return args.Get(0).(*redis.StringCmd)
}

type MockMailSender struct {
	mock.Mock
}

func (m *MockMailSender) Send(email *mail.SGMailV3) (*rest.Response, error) {
	args := m.Called(email)
	resp, _ := args.Get(0).(*rest.Response)
	return resp, args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, event domain.Event) error {
	return m.Called(ctx, event).Error(0)
}

func overdueEvent() domain.Event {
	return domain.Event{
		ID:            "evt-1",
		Type:          domain.EventLoanOverdue,
		OccurredAt:    time.Date(2024, 6, 2, 9, 0, 0, 0, time.UTC),
		EquipmentID:   3,
		ReservationID: 11,
		RequesterID:   7,
		Attributes:    map[string]string{"overdue_minutes": "90", "expected_return_at": "2024-06-02T07:30"},
	}
}

func TestRedisPublisher_Publish(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		client := new(MockStreamAdder)
		client.On("XAdd", ctx, mock.MatchedBy(func(a *redis.XAddArgs) bool {
			values := a.Values.(map[string]any)
			var decoded domain.Event
			if err := json.Unmarshal([]byte(values["payload"].(string)), &decoded); err != nil {
				return false
			}
			return a.Stream == "scheduler:events" && a.MaxLen == 1000 && a.Approx &&
				values["type"] == "LoanOverdue" && decoded.ReservationID == 11
		})).Return(redis.NewStringResult("1-0", nil))

		p := NewRedisPublisher(client, "scheduler:events", 1000)
		require.NoError(t, p.Publish(ctx, overdueEvent()))
		client.AssertExpectations(t)
	})

	t.Run("Unbounded stream", func(t *testing.T) {
		client := new(MockStreamAdder)
		client.On("XAdd", ctx, mock.MatchedBy(func(a *redis.XAddArgs) bool {
			return a.MaxLen == 0 && !a.Approx
		})).Return(redis.NewStringResult("1-0", nil))

		require.NoError(t, NewRedisPublisher(client, "s", 0).Publish(ctx, overdueEvent()))
		client.AssertExpectations(t)
	})

	t.Run("Redis error", func(t *testing.T) {
		client := new(MockStreamAdder)
		client.On("XAdd", ctx, mock.Anything).Return(redis.NewStringResult("", errors.New("connection refused")))

		err := NewRedisPublisher(client, "s", 0).Publish(ctx, overdueEvent())
		assert.ErrorContains(t, err, "connection refused")
	})
}

func TestMailPublisher_Publish(t *testing.T) {
	ctx := context.Background()
	staff := []string{"desk@example.com", "lab@example.com"}

	t.Run("Mails default event types", func(t *testing.T) {
		client := new(MockMailSender)
		client.On("Send", mock.MatchedBy(func(m *mail.SGMailV3) bool {
			return m.Subject == "Overdue loan: reservation 11 on equipment 3" &&
				len(m.Personalizations) == 1 && len(m.Personalizations[0].To) == 2 &&
				m.From.Address == "noreply@example.com"
		})).Return(&rest.Response{StatusCode: 202}, nil).Once()

		p := NewMailPublisher(client, "noreply@example.com", "Scheduler", staff, nil)
		require.NoError(t, p.Publish(ctx, overdueEvent()))
		client.AssertExpectations(t)
	})

	t.Run("Mails return reminders by default", func(t *testing.T) {
		client := new(MockMailSender)
		client.On("Send", mock.MatchedBy(func(m *mail.SGMailV3) bool {
			return m.Subject == "Return due soon: reservation 11 on equipment 3"
		})).Return(&rest.Response{StatusCode: 202}, nil).Once()

		p := NewMailPublisher(client, "noreply@example.com", "Scheduler", staff, nil)
		ev := overdueEvent()
		ev.Type = domain.EventLoanDueSoon
		require.NoError(t, p.Publish(ctx, ev))
		client.AssertExpectations(t)
	})

	t.Run("Skips unselected types", func(t *testing.T) {
		client := new(MockMailSender)
		p := NewMailPublisher(client, "noreply@example.com", "Scheduler", staff, nil)

		ev := overdueEvent()
		ev.Type = domain.EventReservationApproved
		require.NoError(t, p.Publish(ctx, ev))
		client.AssertNotCalled(t, "Send", mock.Anything)
	})

	t.Run("No recipients", func(t *testing.T) {
		client := new(MockMailSender)
		p := NewMailPublisher(client, "noreply@example.com", "Scheduler", nil, nil)
		require.NoError(t, p.Publish(ctx, overdueEvent()))
		client.AssertNotCalled(t, "Send", mock.Anything)
	})

	t.Run("Error status", func(t *testing.T) {
		client := new(MockMailSender)
		client.On("Send", mock.Anything).Return(&rest.Response{StatusCode: 401, Body: "unauthorized"}, nil)

		p := NewMailPublisher(client, "noreply@example.com", "Scheduler", staff, []domain.EventType{domain.EventLoanOverdue})
		err := p.Publish(ctx, overdueEvent())
		assert.ErrorContains(t, err, "status 401")
	})
}

func TestMailBody(t *testing.T) {
	body := mailBody(overdueEvent())
	assert.Contains(t, body, "Reservation: 11\n")
	assert.Contains(t, body, "Occurred at: 2024-06-02T09:00\n")
	assert.Less(t,
		strings.Index(body, "expected_return_at"),
		strings.Index(body, "overdue_minutes"),
		"attributes are sorted")
}

func TestFanout_Publish(t *testing.T) {
	ctx := context.Background()
	ev := overdueEvent()

	first := new(MockPublisher)
	first.On("Publish", ctx, ev).Return(errors.New("stream down"))
	second := new(MockPublisher)
	second.On("Publish", ctx, ev).Return(nil)

	err := Fanout{first, second, LogPublisher{}}.Publish(ctx, ev)
	assert.ErrorContains(t, err, "stream down")
	first.AssertExpectations(t)
	second.AssertExpectations(t)
}
