package llm

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingProvider struct {
	name  string
	calls atomic.Int32
	inFly atomic.Int32
	peak  atomic.Int32
	delay time.Duration
}

func (c *countingProvider) ChatWithImages(ctx context.Context, req VisionChatRequest) (*ChatResponse, error) {
	c.calls.Add(1)
	n := c.inFly.Add(1)
	defer c.inFly.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	return &ChatResponse{Content: c.name}, nil
}

func TestPoolRoundRobin(t *testing.T) {
	a, b := &countingProvider{name: "a"}, &countingProvider{name: "b"}
	pool, err := NewPool(BalanceRoundRobin, []Provider{a, b}, nil)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	var got []string
	for range 4 {
		resp, err := pool.ChatWithImages(context.Background(), VisionChatRequest{})
		if err != nil {
			t.Fatalf("ChatWithImages: %v", err)
		}
		got = append(got, resp.Content)
	}
	want := []string{"a", "b", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestPoolRandomUsesAllMembers(t *testing.T) {
	a, b := &countingProvider{name: "a"}, &countingProvider{name: "b"}
	pool, err := NewPool(BalanceRandom, []Provider{a, b}, nil)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	for range 200 {
		pool.ChatWithImages(context.Background(), VisionChatRequest{})
	}
	if a.calls.Load() == 0 || b.calls.Load() == 0 {
		t.Errorf("calls a=%d b=%d, want both non-zero", a.calls.Load(), b.calls.Load())
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	a := &countingProvider{name: "a", delay: 20 * time.Millisecond}
	pool, err := NewPool("", []Provider{a}, []int{2})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.ChatWithImages(context.Background(), VisionChatRequest{})
		}()
	}
	wg.Wait()
	if peak := a.peak.Load(); peak > 2 {
		t.Errorf("peak in-flight = %d, want <= 2", peak)
	}
}

func TestPoolErrors(t *testing.T) {
	if _, err := NewPool("", nil, nil); err == nil {
		t.Error("expected error for empty pool")
	}
	if _, err := NewPool("fastest", []Provider{&countingProvider{}}, nil); err == nil {
		t.Error("expected error for unknown strategy")
	}
	if _, err := NewPoolFromConfigs("", []Config{{Provider: "nope"}}); err == nil {
		t.Error("expected error for unknown provider config")
	}
}
