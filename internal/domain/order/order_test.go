package order

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		order   Order
		wantErr bool
	}{
		{
			name:    "valid",
			order:   Order{ID: "ord-1", CreatedAt: time.Now()},
			wantErr: false,
		},
		{
			name:    "missing id",
			order:   Order{CreatedAt: time.Now()},
			wantErr: true,
		},
		{
			name:    "missing created_at",
			order:   Order{ID: "ord-1"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.order.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrMalformedRecord)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusProcessing, StatusShipped, StatusDelivered} {
		assert.True(t, s.Valid(), string(s))
	}
	assert.False(t, Status("cancelled").Valid())
	assert.False(t, Status("").Valid())
}

func TestFormatCents(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{0, "0.00"},
		{5, "0.05"},
		{4999, "49.99"},
		{100000, "1000.00"},
		{-4999, "-49.99"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatCents(tt.cents))
	}
}

func TestDayKey(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)

	// 23:30 UTC lands on the next day in UTC+9.
	ts := time.Date(2025, 3, 10, 23, 30, 0, 0, time.UTC)
	key, ok := DayKey(ts, loc)
	require.True(t, ok)
	assert.Equal(t, "2025-03-11", key)

	_, ok = DayKey(time.Time{}, loc)
	assert.False(t, ok, "zero timestamp must be unbucketed")
}

func TestHourKey(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)

	ts := time.Date(2025, 3, 10, 23, 30, 0, 0, time.UTC)
	hour, ok := HourKey(ts, loc)
	require.True(t, ok)
	assert.Equal(t, 8, hour)

	_, ok = HourKey(time.Time{}, loc)
	assert.False(t, ok)
}

func TestChangeKindValid(t *testing.T) {
	assert.True(t, ChangeInsert.Valid())
	assert.True(t, ChangeUpdate.Valid())
	assert.True(t, ChangeDelete.Valid())
	assert.False(t, ChangeKind("upsert").Valid())
}
