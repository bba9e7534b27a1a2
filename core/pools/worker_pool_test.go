package pools

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPoolExecutesTasks(t *testing.T) {
	p := NewWorkerPool(Options{MinWorkers: 2, MaxWorkers: 4})
	p.Start()
	defer p.Close(time.Second)

	var done sync.WaitGroup
	var count atomic.Int32
	for i := 0; i < 20; i++ {
		done.Add(1)
		if !p.Submit(func() {
			count.Add(1)
			done.Done()
		}) {
			t.Fatal("Submit rejected while pool open")
		}
	}

	waitDone(t, &done)
	if count.Load() != 20 {
		t.Errorf("Expected 20 tasks executed, got %d", count.Load())
	}
}

func TestWorkerPoolStartsAtFloor(t *testing.T) {
	p := NewWorkerPool(Options{MinWorkers: 3, MaxWorkers: 8})
	p.Start()
	defer p.Close(time.Second)

	if got := p.Stats().LiveWorkers; got != 3 {
		t.Errorf("Expected 3 resident workers, got %d", got)
	}
}

func TestWorkerPoolGrowsLazilyToMax(t *testing.T) {
	p := NewWorkerPool(Options{MinWorkers: 1, MaxWorkers: 3, QueueSize: 64})
	p.Start()
	defer p.Close(time.Second)

	// Stagger the blocking tasks so each submit observes a fully busy pool
	// and triggers one growth step.
	release := make(chan struct{})
	for i := 0; i < 3; i++ {
		var started sync.WaitGroup
		started.Add(1)
		p.Submit(func() {
			started.Done()
			<-release
		})
		waitDone(t, &started)
	}

	if got := p.Stats().LiveWorkers; got != 3 {
		t.Errorf("Expected growth to 3 workers under load, got %d", got)
	}

	// More load must not push past the cap.
	for i := 0; i < 10; i++ {
		p.Submit(func() {})
	}
	if got := p.Stats().LiveWorkers; got > 3 {
		t.Errorf("Pool exceeded MaxWorkers: %d", got)
	}
	close(release)
}

func TestWorkerPoolIdleRetirement(t *testing.T) {
	p := NewWorkerPool(Options{
		MinWorkers:  1,
		MaxWorkers:  4,
		IdleTimeout: 20 * time.Millisecond,
	})
	p.Start()
	defer p.Close(time.Second)

	release := make(chan struct{})
	for i := 0; i < 4; i++ {
		var started sync.WaitGroup
		started.Add(1)
		p.Submit(func() {
			started.Done()
			<-release
		})
		waitDone(t, &started)
	}
	close(release)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p.Stats().LiveWorkers == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := p.Stats().LiveWorkers; got != 1 {
		t.Errorf("Expected idle workers to retire to the floor, got %d", got)
	}
	if p.Stats().Retired == 0 {
		t.Error("Expected retirements recorded in stats")
	}
}

func TestWorkerPoolSubmitBlocksWhenFull(t *testing.T) {
	p := NewWorkerPool(Options{MinWorkers: 1, MaxWorkers: 1, QueueSize: 1})
	p.Start()
	defer p.Close(time.Second)

	block := make(chan struct{})
	var started sync.WaitGroup
	started.Add(1)
	p.Submit(func() {
		started.Done()
		<-block
	})
	waitDone(t, &started)

	// Worker busy, queue holds one more; the third submit must block.
	p.Submit(func() {})

	submitted := make(chan struct{})
	go func() {
		p.Submit(func() {})
		close(submitted)
	}()

	select {
	case <-submitted:
		t.Fatal("Submit should block while the queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	close(block)
	select {
	case <-submitted:
	case <-time.After(2 * time.Second):
		t.Fatal("Submit did not unblock after the queue drained")
	}
}

func TestWorkerPoolLifecycleCallbacks(t *testing.T) {
	var starts, stops atomic.Int32
	p := NewWorkerPool(Options{
		MinWorkers:    2,
		MaxWorkers:    2,
		OnWorkerStart: func(int) { starts.Add(1) },
		OnWorkerStop:  func(int) { stops.Add(1) },
	})
	p.Start()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && starts.Load() != 2 {
		time.Sleep(5 * time.Millisecond)
	}
	if starts.Load() != 2 {
		t.Fatalf("Expected 2 start callbacks, got %d", starts.Load())
	}

	if err := p.Close(time.Second); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if stops.Load() != 2 {
		t.Errorf("Expected 2 stop callbacks, got %d", stops.Load())
	}
}

func TestWorkerPoolCloseDrainsQueue(t *testing.T) {
	p := NewWorkerPool(Options{MinWorkers: 1, MaxWorkers: 1, QueueSize: 16})
	p.Start()

	var count atomic.Int32
	for i := 0; i < 10; i++ {
		p.Submit(func() { count.Add(1) })
	}

	if err := p.Close(2 * time.Second); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if count.Load() != 10 {
		t.Errorf("Accepted tasks must run before shutdown, got %d of 10", count.Load())
	}

	if p.Submit(func() {}) {
		t.Error("Submit after Close must be rejected")
	}
}

func TestWorkerPoolCloseGracePeriod(t *testing.T) {
	p := NewWorkerPool(Options{MinWorkers: 1, MaxWorkers: 1})
	p.Start()

	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(1)
	p.Submit(func() {
		started.Done()
		<-release
	})
	waitDone(t, &started)

	if err := p.Close(20 * time.Millisecond); err != ErrShutdownTimeout {
		t.Fatalf("Expected ErrShutdownTimeout, got %v", err)
	}
	close(release)
}

func TestWorkerPoolResizeRaisesFloor(t *testing.T) {
	p := NewWorkerPool(Options{MinWorkers: 1, MaxWorkers: 2})
	p.Start()
	defer p.Close(time.Second)

	p.Resize(4, 8)
	if got := p.Stats().LiveWorkers; got != 4 {
		t.Errorf("Expected spawn to the new floor, got %d", got)
	}
}

func waitDone(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting")
	}
}
