package event

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Versifine/mcwire/internal/protocol"
)

func runMain(t *testing.T, d *Dispatcher) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.RunMain(ctx) }()
	return cancel, done
}

// TestMainQueuePreservesOrder 非线程安全的包按到达顺序在主循环上执行
func TestMainQueuePreservesOrder(t *testing.T) {
	d := NewDispatcher(Options{QueueSize: 4})
	var got []int
	d.Subscribe("join_game", func(p Packet) {
		got = append(got, p.Value.(int))
	})

	cancel, done := runMain(t, d)
	defer cancel()
	for i := 0; i < 50; i++ {
		if err := d.Dispatch(context.Background(), Packet{Name: "join_game", State: protocol.Play, Value: i}); err != nil {
			t.Fatalf("Dispatch failed: %v", err)
		}
	}
	d.Close()
	if err := <-done; err != nil {
		t.Fatalf("RunMain = %v, 期望 nil", err)
	}
	if len(got) != 50 {
		t.Fatalf("收到 %d 个包, 期望 50", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("got[%d] = %d, 顺序错误", i, v)
		}
	}
}

// TestThreadSafePacketsRunOnPool 线程安全的包不经过主队列
func TestThreadSafePacketsRunOnPool(t *testing.T) {
	d := NewDispatcher(Options{Workers: 4})
	var count atomic.Int32
	d.Subscribe("chunk_data", func(p Packet) { count.Add(1) })
	d.Subscribe("keep_alive", func(p Packet) { count.Add(1) })

	for i := 0; i < 20; i++ {
		_ = d.Dispatch(context.Background(), Packet{Name: "chunk_data", ThreadSafe: true, LowPriority: true})
		_ = d.Dispatch(context.Background(), Packet{Name: "keep_alive", ThreadSafe: true})
	}
	d.Close()
	if count.Load() != 40 {
		t.Errorf("handler 被调用 %d 次, 期望 40", count.Load())
	}
	if len(d.main) != 0 {
		t.Errorf("主队列不应有包, 实际 %d", len(d.main))
	}
}

// TestWorkerLimit 并发数不超过 Workers
func TestWorkerLimit(t *testing.T) {
	d := NewDispatcher(Options{Workers: 2, LowPriorityWorkers: 1})
	var running, peak atomic.Int32
	d.Subscribe("time_update", func(p Packet) {
		n := running.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
	})
	for i := 0; i < 10; i++ {
		_ = d.Dispatch(context.Background(), Packet{Name: "time_update", ThreadSafe: true})
	}
	d.Close()
	if peak.Load() > 2 {
		t.Errorf("峰值并发 %d, 期望 <= 2", peak.Load())
	}
}

// TestLowPriorityPoolNeverDrops 低优先级包走独立的池, 池满时阻塞而不是丢弃
func TestLowPriorityPoolNeverDrops(t *testing.T) {
	d := NewDispatcher(Options{Workers: 4, LowPriorityWorkers: 1, QueueSize: 1})
	release := make(chan struct{})
	var lowRunning, lowDone, normal atomic.Int32
	d.Subscribe("light_update", func(p Packet) {
		if lowRunning.Add(1) > 1 {
			t.Error("低优先级池并发超过 1")
		}
		<-release
		lowRunning.Add(-1)
		lowDone.Add(1)
	})
	d.Subscribe("keep_alive", func(p Packet) { normal.Add(1) })

	_ = d.Dispatch(context.Background(), Packet{Name: "light_update", ThreadSafe: true, LowPriority: true})
	// the low pool is busy, the regular pool is not
	for i := 0; i < 5; i++ {
		_ = d.Dispatch(context.Background(), Packet{Name: "keep_alive", ThreadSafe: true})
	}
	deadline := time.Now().Add(2 * time.Second)
	for normal.Load() != 5 {
		if time.Now().After(deadline) {
			t.Fatalf("普通线程安全包被低优先级包阻塞: %d/5", normal.Load())
		}
		time.Sleep(time.Millisecond)
	}

	sent := make(chan struct{})
	go func() {
		defer close(sent)
		for i := 0; i < 19; i++ {
			_ = d.Dispatch(context.Background(), Packet{Name: "light_update", ThreadSafe: true, LowPriority: true})
		}
	}()
	close(release)
	<-sent
	d.Close()
	if lowDone.Load() != 20 {
		t.Errorf("低优先级 handler 执行 %d 次, 期望 20", lowDone.Load())
	}
}

func TestDispatchWithoutHandlers(t *testing.T) {
	d := NewDispatcher(Options{QueueSize: 1})
	for i := 0; i < 5; i++ {
		if err := d.Dispatch(context.Background(), Packet{Name: "nobody"}); err != nil {
			t.Fatalf("Dispatch failed: %v", err)
		}
	}
	if len(d.main) != 0 {
		t.Error("没有 handler 的包不应入队")
	}
}

// TestHandlerPanicIsRecovered handler panic 不影响后续 handler
func TestHandlerPanicIsRecovered(t *testing.T) {
	d := NewDispatcher(Options{})
	var called atomic.Bool
	d.Subscribe("respawn", func(p Packet) { panic("boom") })
	d.Subscribe("respawn", func(p Packet) { called.Store(true) })

	cancel, done := runMain(t, d)
	defer cancel()
	_ = d.Dispatch(context.Background(), Packet{Name: "respawn"})
	d.Close()
	<-done
	if !called.Load() {
		t.Error("panic 之后的 handler 应该被调用")
	}
}

func TestDispatchAfterClose(t *testing.T) {
	d := NewDispatcher(Options{})
	d.Subscribe("x", func(Packet) {})
	d.Close()
	if err := d.Dispatch(context.Background(), Packet{Name: "x"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, 期望 ErrClosed", err)
	}
}

// TestDispatchHonoursContext 主队列满时 Dispatch 随 ctx 返回
func TestDispatchHonoursContext(t *testing.T) {
	d := NewDispatcher(Options{QueueSize: 1})
	d.Subscribe("x", func(Packet) {})
	if err := d.Dispatch(context.Background(), Packet{Name: "x"}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Dispatch(ctx, Packet{Name: "x"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, 期望 DeadlineExceeded", err)
	}
}

func TestRunMainStopsOnCancel(t *testing.T) {
	d := NewDispatcher(Options{})
	cancel, done := runMain(t, d)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("RunMain = %v, 期望 context.Canceled", err)
	}
}

// TestConcurrentSubscribeAndDispatch 并发订阅和分发的线程安全性
func TestConcurrentSubscribeAndDispatch(t *testing.T) {
	d := NewDispatcher(Options{Workers: 8})
	var count atomic.Int64
	d.Subscribe("test", func(Packet) { count.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.Dispatch(context.Background(), Packet{Name: "test", ThreadSafe: true})
		}()
	}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Subscribe("test", func(Packet) { count.Add(1) })
		}()
	}
	wg.Wait()
	d.Close()

	if count.Load() < 100 {
		t.Errorf("至少应该收到 100 次事件, 实际收到 %d 次", count.Load())
	}
}
