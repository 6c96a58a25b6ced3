package parallel

import (
	"sync/atomic"
	"testing"
)

func TestParallelize_CoversAllItems(t *testing.T) {
	for _, items := range []int{0, 1, 7, 1000} {
		seen := make([]int32, items)
		Parallelize(items, func(start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&seen[i], 1)
			}
		})
		for i, n := range seen {
			if n != 1 {
				t.Fatalf("items=%d: index %d visited %d times", items, i, n)
			}
		}
	}
}

func TestParallelizeWithThreshold_Sequential(t *testing.T) {
	calls := 0
	ParallelizeWithThreshold(10, 100, func(start, end int) {
		calls++
		if start != 0 || end != 10 {
			t.Errorf("expected single range [0,10), got [%d,%d)", start, end)
		}
	})
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestParallelizeN(t *testing.T) {
	tests := []struct {
		name    string
		items   int
		workers int
	}{
		{"sequential", 5, 1},
		{"all cores", 50, -1},
		{"more workers than items", 3, 8},
		{"empty", 0, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := make([]int, tt.items)
			var calls int64
			ParallelizeN(tt.items, tt.workers, func(i int) {
				results[i] = i * i
				atomic.AddInt64(&calls, 1)
			})
			if int(calls) != tt.items {
				t.Fatalf("expected %d calls, got %d", tt.items, calls)
			}
			for i, v := range results {
				if v != i*i {
					t.Errorf("results[%d] = %d", i, v)
				}
			}
		})
	}
}
