package monitor

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type collector struct {
	mu   sync.Mutex
	got  []Envelope
	fail bool
}

func (c *collector) send(env Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("closed")
	}
	c.got = append(c.got, env)
	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.got)
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub()
	a, b := &collector{}, &collector{}
	removeA := hub.Add("a", a.send)
	removeB := hub.Add("b", b.send)
	if hub.Len() != 2 {
		t.Fatalf("Len = %d, want 2", hub.Len())
	}

	for i := 0; i < 10; i++ {
		env, _ := NewEnvelope(TypeTransfer, NewMsgID(), nil)
		hub.Broadcast(env)
	}
	removeA()
	removeB()

	if a.count() != 10 || b.count() != 10 {
		t.Errorf("a got %d, b got %d, want 10 each", a.count(), b.count())
	}
	if hub.Len() != 0 {
		t.Errorf("Len = %d after remove", hub.Len())
	}
	removeA()
}

func TestHubReplaceAndSendTo(t *testing.T) {
	hub := NewHub()
	old, cur := &collector{}, &collector{}
	removeOld := hub.Add("x", old.send)
	removeCur := hub.Add("x", cur.send)
	defer removeCur()

	removeOld()
	if hub.Len() != 1 {
		t.Fatalf("stale remove dropped the replacement, Len = %d", hub.Len())
	}

	env, _ := NewEnvelope(TypeHello, NewMsgID(), Hello{Server: "s"})
	if !hub.SendTo("x", env) {
		t.Fatal("SendTo existing subscriber returned false")
	}
	if hub.SendTo("missing", env) {
		t.Error("SendTo missing subscriber returned true")
	}
	deadline := time.Now().Add(2 * time.Second)
	for cur.count() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if cur.count() != 1 || old.count() != 0 {
		t.Errorf("cur got %d, old got %d", cur.count(), old.count())
	}
}

func TestHubSlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewHub()
	block := make(chan struct{})
	remove := hub.Add("slow", func(Envelope) error {
		<-block
		return nil
	})
	done := make(chan struct{})
	go func() {
		env, _ := NewEnvelope(TypeTransfer, "id", nil)
		for i := 0; i < subscriberBuffer*2; i++ {
			hub.Broadcast(env)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Broadcast blocked on a slow subscriber")
	}
	close(block)
	remove()
}

func TestEnvelope(t *testing.T) {
	env, err := NewEnvelope(TypeTransfer, "abc", Transfer{Path: "/p", Status: "OK"})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	if err := env.ValidateBasic(); err != nil {
		t.Errorf("ValidateBasic: %v", err)
	}
	var tr Transfer
	if err := env.DecodePayload(&tr); err != nil || tr.Path != "/p" {
		t.Errorf("DecodePayload = %+v, %v", tr, err)
	}

	bad := []Envelope{
		{V: 2, Type: "t", MsgID: "m"},
		{V: EnvelopeVersion, MsgID: "m"},
		{V: EnvelopeVersion, Type: "t"},
	}
	for _, e := range bad {
		if e.ValidateBasic() == nil {
			t.Errorf("%+v: expected validation error", e)
		}
	}
	if (Envelope{}).DecodePayload(&tr) == nil {
		t.Error("expected error for empty payload")
	}
	if len(NewMsgID()) != 16 || NewMsgID() == NewMsgID() {
		t.Error("NewMsgID should return distinct 16-character ids")
	}
	if _, err := NewEnvelope("x", "y", func() {}); err == nil {
		t.Error("expected marshal error")
	}
}
