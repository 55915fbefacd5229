package items

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestItem_AcceptsBidsAt(t *testing.T) {
	endAt := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		status ItemStatus
		now    time.Time
		want   bool
	}{
		{name: "open before deadline", status: ItemStatusOpen, now: endAt.Add(-time.Second), want: true},
		{name: "open exactly at deadline", status: ItemStatusOpen, now: endAt, want: false},
		{name: "open after deadline", status: ItemStatusOpen, now: endAt.Add(time.Hour), want: false},
		{name: "sold before deadline", status: ItemStatusSold, now: endAt.Add(-time.Hour), want: false},
		{name: "unsold before deadline", status: ItemStatusUnsold, now: endAt.Add(-time.Hour), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := &Item{Status: tt.status, EndAt: endAt}
			assert.Equal(t, tt.want, item.AcceptsBidsAt(tt.now))
		})
	}
}

func TestItem_IsDueAt(t *testing.T) {
	endAt := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)

	assert.False(t, (&Item{Status: ItemStatusOpen, EndAt: endAt}).IsDueAt(endAt.Add(-time.Nanosecond)))
	assert.True(t, (&Item{Status: ItemStatusOpen, EndAt: endAt}).IsDueAt(endAt))
	assert.True(t, (&Item{Status: ItemStatusOpen, EndAt: endAt}).IsDueAt(endAt.Add(48*time.Hour)))
	assert.False(t, (&Item{Status: ItemStatusSold, EndAt: endAt}).IsDueAt(endAt.Add(time.Hour)))
	assert.False(t, (&Item{Status: ItemStatusUnsold, EndAt: endAt}).IsDueAt(endAt.Add(time.Hour)))
}

func TestItem_MinimumBid(t *testing.T) {
	assert.Equal(t, int64(100), (&Item{StartPrice: 100}).MinimumBid())
	assert.Equal(t, int64(150), (&Item{StartPrice: 100, CurrentHighestBid: 150}).MinimumBid())
}

func TestItem_IsOwnedBy(t *testing.T) {
	owner := uuid.New()
	item := &Item{OwnerID: owner}

	assert.True(t, item.IsOwnedBy(owner))
	assert.False(t, item.IsOwnedBy(uuid.New()))
}
