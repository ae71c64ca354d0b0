package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQueuePopsInFireOrder(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	q := newTimerQueue()
	q.Arm(1, base.Add(3*time.Minute))
	q.Arm(2, base.Add(1*time.Minute))
	q.Arm(3, base.Add(2*time.Minute))

	now := base.Add(5 * time.Minute)
	var order []int64
	for {
		id, ok := q.PopDue(now)
		if !ok {
			break
		}
		order = append(order, id)
	}
	assert.Equal(t, []int64{2, 3, 1}, order)
}

func TestQueueNothingDue(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	q := newTimerQueue()
	q.Arm(1, base.Add(time.Hour))

	_, ok := q.PopDue(base)
	assert.False(t, ok)
	assert.True(t, q.Armed(1))
}

func TestQueueRearmReplacesTimer(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	q := newTimerQueue()
	q.Arm(7, base.Add(time.Minute))
	q.Arm(7, base.Add(2*time.Minute)) // replaces, older entry becomes stale

	id, ok := q.PopDue(base.Add(time.Hour))
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)

	// the stale first entry must not fire a second time
	_, ok = q.PopDue(base.Add(time.Hour))
	assert.False(t, ok)
}

func TestQueueCancelTombstones(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	q := newTimerQueue()
	q.Arm(1, base.Add(time.Minute))
	q.Arm(2, base.Add(2*time.Minute))
	q.Cancel(1)

	id, ok := q.PopDue(base.Add(time.Hour))
	assert.True(t, ok)
	assert.Equal(t, int64(2), id)

	_, ok = q.PopDue(base.Add(time.Hour))
	assert.False(t, ok)
	assert.False(t, q.Armed(1))
}
