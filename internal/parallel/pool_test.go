package parallel

import (
	"errors"
	"runtime"
	"sync/atomic"
	"testing"
)

// =============================================================================
// WorkerPool Creation Tests
// =============================================================================

func TestWorkerPool_Create(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	if pool.Workers() != 4 {
		t.Errorf("Workers() = %d, want 4", pool.Workers())
	}
	if !pool.IsRunning() {
		t.Error("Pool should be running after creation")
	}
}

func TestWorkerPool_CreateZeroWorkers(t *testing.T) {
	pool := NewWorkerPool(0)
	defer pool.Close()

	expected := runtime.GOMAXPROCS(0)
	if pool.Workers() != expected {
		t.Errorf("Workers() = %d, want %d (GOMAXPROCS)", pool.Workers(), expected)
	}
}

// =============================================================================
// Run Tests
// =============================================================================

func TestWorkerPool_Run(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	numTasks := 100

	work := make([]func(), numTasks)
	for i := range work {
		work[i] = func() {
			counter.Add(1)
		}
	}

	if err := pool.Run(work); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if counter.Load() != int64(numTasks) {
		t.Errorf("counter = %d, want %d", counter.Load(), numTasks)
	}
}

func TestWorkerPool_RunEmpty(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Close()

	if err := pool.Run(nil); err != nil {
		t.Errorf("Run(nil) error = %v", err)
	}
}

func TestWorkerPool_RunPanic(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Close()

	var ran atomic.Int64
	work := []func(){
		func() { ran.Add(1) },
		func() { panic("boom") },
		func() { ran.Add(1) },
	}

	err := pool.Run(work)
	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("Run() error = %v, want *PanicError", err)
	}
	if pe.Value != "boom" {
		t.Errorf("PanicError.Value = %v, want boom", pe.Value)
	}
	if ran.Load() != 2 {
		t.Errorf("ran = %d, want 2 (other items still run)", ran.Load())
	}
}

func TestWorkerPool_RunAfterClose(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()

	var counter atomic.Int64
	err := pool.Run([]func(){func() { counter.Add(1) }, func() { counter.Add(1) }})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if counter.Load() != 2 {
		t.Errorf("counter = %d, want 2 (inline after Close)", counter.Load())
	}
}

// =============================================================================
// Rows Tests
// =============================================================================

func TestWorkerPool_Rows(t *testing.T) {
	tests := []struct {
		name    string
		workers int
		height  int
		minRows int
	}{
		{"one row", 4, 1, 1},
		{"even split", 4, 16, 1},
		{"uneven split", 3, 10, 1},
		{"min rows", 8, 10, 4},
		{"more workers than rows", 16, 3, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := NewWorkerPool(tt.workers)
			defer pool.Close()

			visits := make([]atomic.Int32, tt.height)
			var bands atomic.Int32
			err := pool.Rows(tt.height, tt.minRows, func(y0, y1 int) {
				bands.Add(1)
				if y1-y0 < tt.minRows && y1 != tt.height {
					t.Errorf("band [%d, %d) shorter than %d rows", y0, y1, tt.minRows)
				}
				for y := y0; y < y1; y++ {
					visits[y].Add(1)
				}
			})
			if err != nil {
				t.Fatalf("Rows() error = %v", err)
			}
			for y := range visits {
				if n := visits[y].Load(); n != 1 {
					t.Errorf("row %d visited %d times, want 1", y, n)
				}
			}
			if int(bands.Load()) > tt.workers {
				t.Errorf("bands = %d, want at most %d", bands.Load(), tt.workers)
			}
		})
	}
}

func TestWorkerPool_RowsZeroHeight(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Close()

	called := false
	if err := pool.Rows(0, 1, func(int, int) { called = true }); err != nil {
		t.Fatalf("Rows() error = %v", err)
	}
	if called {
		t.Error("fn called for zero height")
	}
}

// =============================================================================
// Close Tests
// =============================================================================

func TestWorkerPool_CloseTwice(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()
	pool.Close()

	if pool.IsRunning() {
		t.Error("Pool should not be running after Close")
	}
}
