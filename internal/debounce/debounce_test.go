package debounce_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/causaldb/causaldb/internal/debounce"
)

func TestDebouncerCoalescesBursts(t *testing.T) {
	var calls int32
	d := debounce.New(20*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })

	for i := 0; i < 10; i++ {
		d.Trigger()
		time.Sleep(2 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)
}

func TestDebouncerStopPreventsCall(t *testing.T) {
	var calls int32
	d := debounce.New(10*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })
	d.Trigger()
	d.Stop()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(0), atomic.LoadInt32(&calls))
}
