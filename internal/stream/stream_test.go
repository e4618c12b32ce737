package stream

import (
	"context"
	"testing"
	"time"
)

func TestPublishFansOut(t *testing.T) {
	s := New[string]()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := s.Subscribe(ctx)
	b := s.Subscribe(ctx)
	if n := s.Publish("hello"); n != 2 {
		t.Fatalf("expected 2 deliveries, got %d", n)
	}
	for _, ch := range []<-chan string{a, b} {
		if got := <-ch; got != "hello" {
			t.Fatalf("unexpected event %q", got)
		}
	}
}

func TestPublishDropsForFullSubscriber(t *testing.T) {
	s := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = s.Subscribe(ctx)

	for i := 0; i < defaultBuffer; i++ {
		s.Publish(i)
	}
	if n := s.Publish(99); n != 0 {
		t.Fatalf("expected drop on full buffer, delivered to %d", n)
	}
}

func TestSubscriptionClosesWithContext(t *testing.T) {
	s := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel not closed after cancel")
	}
	deadline := time.Now().Add(time.Second)
	for s.Subscribers() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber not removed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPublishWaitBlocksUntilRead(t *testing.T) {
	s := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := s.Subscribe(ctx)
	for i := 0; i < defaultBuffer; i++ {
		s.Publish(i)
	}

	done := make(chan error, 1)
	go func() { done <- s.PublishWait(context.Background(), 42) }()

	select {
	case <-done:
		t.Fatalf("PublishWait returned before buffer space was available")
	case <-time.After(20 * time.Millisecond):
	}
	<-ch
	if err := <-done; err != nil {
		t.Fatalf("PublishWait: %v", err)
	}
}

func TestPublishWaitSkipsCancelledSubscriber(t *testing.T) {
	s := New[int]()
	subCtx, cancelSub := context.WithCancel(context.Background())
	_ = s.Subscribe(subCtx)
	for i := 0; i < defaultBuffer; i++ {
		s.Publish(i)
	}

	done := make(chan error, 1)
	go func() { done <- s.PublishWait(context.Background(), 42) }()
	cancelSub()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("PublishWait: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("PublishWait stuck on a cancelled subscriber")
	}
}
