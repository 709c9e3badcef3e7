package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/foodshare/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeExpirer struct {
	calls atomic.Int32
	posts []types.Post
	err   error
}

func (f *fakeExpirer) ExpireOverdue(ctx context.Context) ([]types.Post, error) {
	f.calls.Add(1)
	return f.posts, f.err
}

func TestRunOnce(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	exp := &fakeExpirer{posts: []types.Post{{ID: "a"}, {ID: "b"}}}
	w := New(exp, zap.New(core), time.Minute)

	n, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	entries := logs.FilterMessage("expired overdue posts").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].ContextMap()["count"])
}

func TestRunOnce_Error(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	exp := &fakeExpirer{err: errors.New("db down")}
	w := New(exp, zap.New(core), time.Minute)

	_, err := w.RunOnce(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, logs.FilterMessage("failed to expire overdue posts").Len())
}

func TestStartStop(t *testing.T) {
	exp := &fakeExpirer{}
	w := New(exp, nil, 5*time.Millisecond)
	w.Start()

	require.Eventually(t, func() bool { return exp.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	w.Stop()
	w.Stop()

	calls := exp.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, exp.calls.Load())
}

func TestZeroIntervalDisablesLoop(t *testing.T) {
	exp := &fakeExpirer{}
	w := New(exp, nil, 0)
	w.Start()
	time.Sleep(20 * time.Millisecond)
	w.Stop()
	assert.Zero(t, exp.calls.Load())
}
