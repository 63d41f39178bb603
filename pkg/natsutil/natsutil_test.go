package natsutil

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

func startTestNATS(t *testing.T) *nats.Conn {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Port: -1})
	if err != nil {
		t.Fatal(err)
	}
	srv.Start()
	if !srv.ReadyForConnections(3 * time.Second) {
		t.Fatal("nats not ready")
	}
	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		nc.Close()
		srv.Shutdown()
	})
	return nc
}

type payload struct {
	VIN   string `json:"vin"`
	Count int    `json:"count"`
}

func TestNatsHeaderCarrier(t *testing.T) {
	msg := &nats.Msg{}
	carrier := (*natsHeaderCarrier)(msg)

	carrier.Set("traceparent", "00-abc-def-01")
	if got := carrier.Get("traceparent"); got != "00-abc-def-01" {
		t.Fatalf("expected traceparent, got %q", got)
	}
	if keys := carrier.Keys(); len(keys) != 1 {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestNatsHeaderCarrierNilHeader(t *testing.T) {
	carrier := (*natsHeaderCarrier)(&nats.Msg{})
	if got := carrier.Get("missing"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
	if keys := carrier.Keys(); keys != nil {
		t.Fatalf("expected nil keys, got %v", keys)
	}
}

func TestNewMsg(t *testing.T) {
	msg, err := NewMsg(context.Background(), "vin.ops", payload{VIN: "X", Count: 2}, map[string]string{"Op-Type": "upsert"})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Subject != "vin.ops" {
		t.Fatalf("subject = %q", msg.Subject)
	}
	if msg.Header.Get("Op-Type") != "upsert" {
		t.Fatalf("header = %v", msg.Header)
	}
	var p payload
	if err := json.Unmarshal(msg.Data, &p); err != nil {
		t.Fatal(err)
	}
	if p.VIN != "X" || p.Count != 2 {
		t.Fatalf("payload = %+v", p)
	}
}

func TestNewMsgUnencodable(t *testing.T) {
	if _, err := NewMsg(context.Background(), "s", make(chan int), nil); err == nil {
		t.Fatal("expected marshal error")
	}
}

type failingPublisher struct{ err error }

func (f failingPublisher) PublishMsg(*nats.Msg) error { return f.err }

func TestPublishError(t *testing.T) {
	boom := errors.New("boom")
	if err := Publish(context.Background(), failingPublisher{boom}, "s", payload{}); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestPublishRoundTrip(t *testing.T) {
	nc := startTestNATS(t)

	ch := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe("test.pub", ch)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	if err := PublishWithHeaders(context.Background(), nc, "test.pub", payload{VIN: "WBA", Count: 42}, map[string]string{"Op": "upsert"}); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-ch:
		var p payload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			t.Fatal(err)
		}
		if p.VIN != "WBA" || p.Count != 42 {
			t.Fatalf("unexpected: %+v", p)
		}
		if msg.Header.Get("Op") != "upsert" {
			t.Fatalf("headers = %v", msg.Header)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout")
	}
}
