package executor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varunalfred/Finmentor-sub000/logging"
	"github.com/varunalfred/Finmentor-sub000/ratelimit"
)

func TestExecuteBatchReturnsResultsInInputOrder(t *testing.T) {
	e := New(3, nil, logging.NoOp{})

	tasks := []Task{
		func(ctx context.Context) (interface{}, error) {
			time.Sleep(20 * time.Millisecond)
			return 1, nil
		},
		func(ctx context.Context) (interface{}, error) {
			return 2, nil
		},
		func(ctx context.Context) (interface{}, error) {
			time.Sleep(10 * time.Millisecond)
			return 3, nil
		},
	}

	results := e.ExecuteBatch(context.Background(), tasks)
	require.Len(t, results, 3)
	assert.Equal(t, 1, results[0].Value)
	assert.Equal(t, 2, results[1].Value)
	assert.Equal(t, 3, results[2].Value)
}

func TestExecuteBatchCapsConcurrency(t *testing.T) {
	e := New(2, nil, logging.NoOp{})

	var current, max int32
	tasks := make([]Task, 6)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) (interface{}, error) {
			n := atomic.AddInt32(&current, 1)
			for {
				old := atomic.LoadInt32(&max)
				if n <= old || atomic.CompareAndSwapInt32(&max, old, n) {
					break
				}
			}
			time.Sleep(15 * time.Millisecond)
			atomic.AddInt32(&current, -1)
			return nil, nil
		}
	}

	e.ExecuteBatch(context.Background(), tasks)
	assert.LessOrEqual(t, int(atomic.LoadInt32(&max)), 2)
}

func TestExecuteBatchOneFailureDoesNotAbortPeers(t *testing.T) {
	e := New(4, nil, logging.NoOp{})

	failAt := 1
	tasks := make([]Task, 4)
	for i := range tasks {
		i := i
		tasks[i] = func(ctx context.Context) (interface{}, error) {
			if i == failAt {
				return nil, errors.New("boom")
			}
			return i, nil
		}
	}

	results := e.ExecuteBatch(context.Background(), tasks)
	for i, r := range results {
		if i == failAt {
			assert.Error(t, r.Err)
		} else {
			assert.NoError(t, r.Err)
			assert.Equal(t, i, r.Value)
		}
	}
}

func TestExecuteBatchAcquiresOneRateLimiterTokenPerTask(t *testing.T) {
	l := ratelimit.New(2, 1000) // plenty of refill so only capacity gates this
	e := New(5, l, logging.NoOp{})

	tasks := make([]Task, 5)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) (interface{}, error) { return nil, nil }
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	results := e.ExecuteBatch(ctx, tasks)
	for _, r := range results {
		assert.NoError(t, r.Err)
	}
}
