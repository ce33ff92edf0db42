package core

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatsKeepsSlowestFunctions(t *testing.T) {
	s := NewStats()
	var wg sync.WaitGroup
	for i := 1; i <= 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.recordFunction(FunctionTiming{Function: fmt.Sprintf("f%d", i), Duration: time.Duration(i) * time.Millisecond, Iterations: 2})
			s.recordDetector("bounds", time.Millisecond)
		}(i)
	}
	wg.Wait()
	s.recordTimeout()
	s.recordPanic()

	snap := s.Snapshot()
	assert.Equal(t, 25, snap.Functions)
	assert.Equal(t, 50, snap.Iterations)
	assert.Equal(t, 1, snap.TimedOut)
	assert.Equal(t, 1, snap.Panics)
	assert.Equal(t, 25*time.Millisecond, snap.DetectorTime["bounds"])
	assert.Len(t, snap.Slowest, 10)
	assert.Equal(t, "f25", snap.Slowest[0].Function)
	assert.Equal(t, "f16", snap.Slowest[9].Function)

	// 快照与内部状态相互独立
	snap.DetectorTime["bounds"] = 0
	assert.Equal(t, 25*time.Millisecond, s.Snapshot().DetectorTime["bounds"])
}
