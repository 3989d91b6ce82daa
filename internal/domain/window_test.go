package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hm(hour, minute int) time.Time {
	return time.Date(2024, 6, 1, hour, minute, 0, 0, time.UTC)
}

func TestTimeWindow_Overlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b TimeWindow
		want bool
	}{
		{"partial", TimeWindow{hm(9, 0), hm(12, 0)}, TimeWindow{hm(11, 0), hm(13, 0)}, true},
		{"contained", TimeWindow{hm(9, 0), hm(12, 0)}, TimeWindow{hm(10, 0), hm(11, 0)}, true},
		{"identical", TimeWindow{hm(9, 0), hm(12, 0)}, TimeWindow{hm(9, 0), hm(12, 0)}, true},
		{"touching", TimeWindow{hm(9, 0), hm(12, 0)}, TimeWindow{hm(12, 0), hm(14, 0)}, false},
		{"disjoint", TimeWindow{hm(9, 0), hm(10, 0)}, TimeWindow{hm(11, 0), hm(12, 0)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Overlaps(tt.b))
			assert.Equal(t, tt.want, Overlaps(tt.b, tt.a))
		})
	}
}

func TestNewTimeWindow(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		w, err := NewTimeWindow(hm(9, 0), hm(12, 0))
		require.NoError(t, err)
		assert.Equal(t, 3*time.Hour, w.Duration())
		assert.Equal(t, "[2024-06-01T09:00, 2024-06-01T12:00)", w.String())
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := NewTimeWindow(hm(9, 0), hm(9, 0))
		assert.ErrorIs(t, err, ErrInvalidWindow)
	})

	t.Run("Reversed", func(t *testing.T) {
		_, err := NewTimeWindow(hm(12, 0), hm(9, 0))
		assert.ErrorIs(t, err, ErrInvalidWindow)
	})

	t.Run("Missing end", func(t *testing.T) {
		_, err := NewTimeWindow(hm(12, 0), time.Time{})
		assert.ErrorIs(t, err, ErrInvalidWindow)
	})

	t.Run("Zone is dropped", func(t *testing.T) {
		zone := time.FixedZone("UTC-3", -3*60*60)
		w, err := NewTimeWindow(time.Date(2024, 6, 1, 9, 0, 0, 0, zone), time.Date(2024, 6, 1, 12, 0, 0, 0, zone))
		require.NoError(t, err)
		assert.Equal(t, hm(9, 0), w.Start)
		assert.Equal(t, time.UTC, w.Start.Location())
	})
}

func TestParseDateTime(t *testing.T) {
	for _, value := range []string{"2024-06-01T09:30", "2024-06-01T09:30:00", "2024-06-01 09:30"} {
		got, err := ParseDateTime(value)
		require.NoError(t, err, value)
		assert.Equal(t, hm(9, 30), got)
	}

	_, err := ParseDateTime("01/06/2024")
	assert.ErrorIs(t, err, ErrInvalidWindow)
}
