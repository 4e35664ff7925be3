package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJobDoesNotOverlapItself(t *testing.T) {
	var running int32
	var overlapped int32
	var runs int32

	job := Job{
		Name:     "slow",
		Interval: 50 * time.Millisecond,
		Run: func(ctx context.Context) error {
			if !atomic.CompareAndSwapInt32(&running, 0, 1) {
				atomic.StoreInt32(&overlapped, 1)
				return nil
			}
			defer atomic.StoreInt32(&running, 0)
			atomic.AddInt32(&runs, 1)
			time.Sleep(120 * time.Millisecond)
			return nil
		},
	}

	sched := New(nil, job)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	sched.Run(ctx)

	assert.Zero(t, atomic.LoadInt32(&overlapped))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&runs), int32(1))
}
