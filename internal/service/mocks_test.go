package service_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"equipment-scheduler/internal/domain"
)

// MockPublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, event domain.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockPublisher) published(t domain.EventType) []domain.Event {
	var out []domain.Event
	for _, c := range m.Calls {
		if c.Method != "Publish" {
			continue
		}
		if e := c.Arguments.Get(1).(domain.Event); e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
