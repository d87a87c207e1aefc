package events

import (
	"testing"
)

func TestEmitRunsHandlersInOrder(t *testing.T) {
	b := NewBus()
	var got []int
	b.Subscribe(IdentityAdded, func(Event) { got = append(got, 1) })
	b.Subscribe(IdentityAdded, func(Event) { got = append(got, 2) })
	b.Subscribe(IdentityRemoved, func(Event) { got = append(got, 99) })

	ev := b.Emit(IdentityAdded, "p")
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("unexpected delivery order: %v", got)
	}
	if ev.Seq != 1 || ev.Topic != IdentityAdded || ev.Payload != "p" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if next := b.Emit(ConnectError, nil); next.Seq != 2 {
		t.Fatalf("seq must grow across topics, got %d", next.Seq)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus()
	calls := 0
	unsubscribe := b.Subscribe(ConnectSuccess, func(Event) { calls++ })
	other := 0
	b.Subscribe(ConnectSuccess, func(Event) { other++ })
	b.Emit(ConnectSuccess, nil)
	unsubscribe()
	unsubscribe()
	b.Emit(ConnectSuccess, nil)
	if calls != 1 || other != 2 {
		t.Fatalf("unexpected calls: unsubscribed=%d other=%d", calls, other)
	}
	if b.Subscribers(ConnectSuccess) != 1 {
		t.Fatalf("expected one subscriber left, got %d", b.Subscribers(ConnectSuccess))
	}
}

func TestHandlerSubscribingDuringEmitWaitsForNextEmit(t *testing.T) {
	b := NewBus()
	late := 0
	b.Subscribe(DisconnectSuccess, func(Event) {
		b.Subscribe(DisconnectSuccess, func(Event) { late++ })
	})
	b.Emit(DisconnectSuccess, nil)
	if late != 0 {
		t.Fatal("handler added during emit must not run in that emit")
	}
	b.Emit(DisconnectSuccess, nil)
	if late != 1 {
		t.Fatalf("expected late handler to run once, got %d", late)
	}
}

func TestHandlerPanicPropagates(t *testing.T) {
	b := NewBus()
	b.Subscribe(DisconnectError, func(Event) { panic("boom") })
	defer func() {
		if r := recover(); r != "boom" {
			t.Fatalf("expected panic to propagate, got %v", r)
		}
	}()
	b.Emit(DisconnectError, nil)
	t.Fatal("emit must not return after a handler panic")
}

func TestEmitWithoutSubscribers(t *testing.T) {
	b := NewBus()
	if ev := b.Emit(IdentityRemoved, nil); ev.Seq != 1 {
		t.Fatalf("emit without subscribers must still assign seq, got %d", ev.Seq)
	}
}
