package events

import (
	"context"
	"testing"
	"time"
)

func TestLocalBusFansOut(t *testing.T) {
	bus := NewLocalBus()
	ctx := context.Background()

	first, stopFirst := bus.Subscribe(ctx)
	defer stopFirst()
	second, stopSecond := bus.Subscribe(ctx)
	defer stopSecond()

	if err := bus.Publish(ctx, Event{Collection: CollectionExpenses, Action: "create", Date: "2025-06-03"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for _, ch := range []<-chan Event{first, second} {
		select {
		case event := <-ch:
			if event.Collection != CollectionExpenses || event.Date != "2025-06-03" || event.At.IsZero() {
				t.Fatalf("unexpected event %+v", event)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber did not receive event")
		}
	}
}

func TestLocalBusCancelClosesChannel(t *testing.T) {
	bus := NewLocalBus()
	ctx, cancel := context.WithCancel(context.Background())

	ch, _ := bus.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel not closed after context cancel")
	}
}

func TestLocalBusDropsForSlowSubscriber(t *testing.T) {
	bus := NewLocalBus()
	ctx := context.Background()
	ch, stop := bus.Subscribe(ctx)
	defer stop()

	for i := 0; i < subscriberBuffer*2; i++ {
		if err := bus.Publish(ctx, Event{Collection: CollectionTransactions}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	if len(ch) != subscriberBuffer {
		t.Fatalf("expected buffer to cap at %d, got %d", subscriberBuffer, len(ch))
	}
}
