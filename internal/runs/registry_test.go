package runs

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycle(t *testing.T) {
	r := NewRegistry()
	clock := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	id := r.Submit("polonnaruwa", "seasonal")
	s, ok := r.Get(id)
	require.True(t, ok)
	assert.Equal(t, StatusQueued, s.State)
	assert.Nil(t, s.StartedAt)

	require.NoError(t, r.Start(id))
	require.NoError(t, r.Progress(id, "compositing"))
	s, _ = r.Get(id)
	assert.Equal(t, StatusRunning, s.State)
	assert.Equal(t, "compositing", s.Message)
	require.NotNil(t, s.StartedAt)

	require.NoError(t, r.Succeed(id, true))
	s, _ = r.Get(id)
	assert.Equal(t, StatusSucceeded, s.State)
	assert.True(t, s.CacheHit)
	assert.Empty(t, s.Message)
	require.NotNil(t, s.FinishedAt)
	assert.True(t, s.FinishedAt.After(*s.StartedAt))

	failed := r.Submit("ampara", "monitoring")
	require.NoError(t, r.Fail(failed, errors.New("no composites")))
	s, _ = r.Get(failed)
	assert.Equal(t, StatusFailed, s.State)
	assert.Equal(t, "no composites", s.Error)

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, id, list[0].ID)
	assert.Equal(t, failed, list[1].ID)
}

func TestGetReturnsCopy(t *testing.T) {
	r := NewRegistry()
	id := r.Submit("polonnaruwa", "seasonal")
	require.NoError(t, r.Start(id))

	s, _ := r.Get(id)
	s.State = StatusFailed
	*s.StartedAt = time.Time{}

	again, _ := r.Get(id)
	assert.Equal(t, StatusRunning, again.State)
	assert.False(t, again.StartedAt.IsZero())
}

func TestUnknownRun(t *testing.T) {
	r := NewRegistry()
	assert.ErrorIs(t, r.Start("nope"), ErrUnknownRun)
	_, ok := r.Get("nope")
	assert.False(t, ok)
}
