package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// startTestNATS starts an embedded NATS server and returns its client URL.
func startTestNATS(t *testing.T) string {
	t.Helper()
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

func TestNATSPublisher_Publish(t *testing.T) {
	url := startTestNATS(t)

	sub, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting subscriber: %v", err)
	}
	defer sub.Close()

	ch := make(chan *nats.Msg, 1)
	if _, err := sub.ChanSubscribe("entkv.>", ch); err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	if err := sub.Flush(); err != nil {
		t.Fatalf("flushing subscription: %v", err)
	}

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	topic := Topic("", "sys_user", KindSaved)
	event := EntitySaved{Table: "sys_user", ID: "1", Key: "sys_user_1", Fields: map[string]any{"data": 111.0}}
	if err := pub.Publish(context.Background(), topic, event); err != nil {
		t.Fatalf("publishing: %v", err)
	}
	pub.conn.Flush()

	select {
	case msg := <-ch:
		if msg.Subject != "entkv.sys_user.saved" {
			t.Errorf("subject = %q", msg.Subject)
		}
		var got EntitySaved
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("decoding event: %v", err)
		}
		if got.Key != "sys_user_1" || got.Fields["data"] != 111.0 {
			t.Errorf("event = %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestTopic(t *testing.T) {
	if got := Topic("app", "foo", KindRemoved); got != "app.foo.removed" {
		t.Errorf("Topic() = %q", got)
	}
	if got := Topic("", "foo", KindSaved); got != "entkv.foo.saved" {
		t.Errorf("Topic() with default prefix = %q", got)
	}
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = &NoopPublisher{}
	if err := p.Publish(context.Background(), "x", nil); err != nil {
		t.Errorf("Publish() error: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}
