package core

import (
	"sync"
	"time"

	"golang.org/x/exp/slices"
)

// slowestKept 保留耗时最长的函数数
const slowestKept = 10

// FunctionTiming 单个函数的分析耗时
type FunctionTiming struct {
	File       string
	Function   string
	Duration   time.Duration
	Iterations int
}

// Stats 分析统计，多个工作协程并发记录
type Stats struct {
	mutex        sync.Mutex
	functions    int
	timedOut     int
	panics       int
	iterations   int
	detectorTime map[string]time.Duration
	slowest      []FunctionTiming
}

// StatsSnapshot 统计的只读副本
type StatsSnapshot struct {
	Functions    int
	TimedOut     int
	Panics       int
	Iterations   int
	DetectorTime map[string]time.Duration
	Slowest      []FunctionTiming
}

// NewStats 创建统计器
func NewStats() *Stats {
	return &Stats{detectorTime: make(map[string]time.Duration)}
}

func (s *Stats) recordFunction(t FunctionTiming) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.functions++
	s.iterations += t.Iterations
	s.slowest = append(s.slowest, t)
	slices.SortStableFunc(s.slowest, func(a, b FunctionTiming) bool {
		return a.Duration > b.Duration
	})
	if len(s.slowest) > slowestKept {
		s.slowest = s.slowest[:slowestKept]
	}
}

func (s *Stats) recordTimeout() {
	s.mutex.Lock()
	s.timedOut++
	s.mutex.Unlock()
}

func (s *Stats) recordPanic() {
	s.mutex.Lock()
	s.panics++
	s.mutex.Unlock()
}

func (s *Stats) recordDetector(name string, d time.Duration) {
	s.mutex.Lock()
	s.detectorTime[name] += d
	s.mutex.Unlock()
}

// Snapshot 获取当前统计
func (s *Stats) Snapshot() StatsSnapshot {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	dt := make(map[string]time.Duration, len(s.detectorTime))
	for k, v := range s.detectorTime {
		dt[k] = v
	}
	return StatsSnapshot{
		Functions:    s.functions,
		TimedOut:     s.timedOut,
		Panics:       s.panics,
		Iterations:   s.iterations,
		DetectorTime: dt,
		Slowest:      append([]FunctionTiming(nil), s.slowest...),
	}
}
