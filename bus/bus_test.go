package bus_test

import (
	"testing"

	"github.com/ew-kislov/apigen/bus"
	"github.com/ew-kislov/apigen/store"
)

func TestPublishSubscribe(t *testing.T) {
	b := bus.New()
	defer b.Close()

	ch, cancel := b.Subscribe("user.created", 4)
	defer cancel()

	b.Publish("user.created", store.Record{"_id": "u1"})

	select {
	case ev := <-ch:
		if ev.Topic != "user.created" {
			t.Errorf("unexpected topic %q", ev.Topic)
		}
		if ev.Record["_id"] != "u1" {
			t.Errorf("unexpected record %v", ev.Record)
		}
	default:
		t.Fatal("no event delivered")
	}
}

func TestPublishIsTopicScoped(t *testing.T) {
	b := bus.New()
	defer b.Close()

	ch, cancel := b.Subscribe("user.created", 1)
	defer cancel()

	b.Publish("user.removed", store.Record{"_id": "u1"})

	select {
	case ev := <-ch:
		t.Errorf("received event for foreign topic: %v", ev)
	default:
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	b := bus.New()
	defer b.Close()

	ch, cancel := b.Subscribe("t", 1)
	defer cancel()

	// The buffer holds one event; subsequent publishes are dropped instead
	// of blocking.
	b.Publish("t", store.Record{"_id": "1"})
	b.Publish("t", store.Record{"_id": "2"})
	b.Publish("t", store.Record{"_id": "3"})

	ev := <-ch
	if ev.Record["_id"] != "1" {
		t.Errorf("expected first event, got %v", ev.Record)
	}
	select {
	case ev := <-ch:
		t.Errorf("expected overflow dropped, got %v", ev)
	default:
	}
}

func TestCancelClosesChannelOnce(t *testing.T) {
	b := bus.New()
	defer b.Close()

	ch, cancel := b.Subscribe("t", 1)
	cancel()
	cancel() // idempotent

	if _, open := <-ch; open {
		t.Error("channel still open after cancel")
	}

	// A cancelled subscriber no longer receives.
	b.Publish("t", store.Record{"_id": "1"})
}

func TestCloseClosesAllSubscribers(t *testing.T) {
	b := bus.New()

	ch1, _ := b.Subscribe("a", 1)
	ch2, _ := b.Subscribe("b", 1)
	b.Close()

	if _, open := <-ch1; open {
		t.Error("subscriber a still open after close")
	}
	if _, open := <-ch2; open {
		t.Error("subscriber b still open after close")
	}

	// Publishing and subscribing after close are safe no-ops.
	b.Publish("a", store.Record{"_id": "1"})
	ch3, cancel := b.Subscribe("a", 1)
	cancel()
	if _, open := <-ch3; open {
		t.Error("post-close subscription returned an open channel")
	}
}
