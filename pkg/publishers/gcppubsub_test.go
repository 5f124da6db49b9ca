package publishers

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	json "github.com/goccy/go-json"
)

func TestPubSubPublisherPublishes(t *testing.T) {
	// Use the in-memory Pub/Sub emulator.
	server := pstest.NewServer()
	defer server.Close()
	t.Setenv("PUBSUB_EMULATOR_HOST", server.Addr)

	ctx := context.Background()
	client, err := pubsub.NewClient(ctx, "test-project")
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	defer client.Close()
	if _, err := client.CreateTopic(ctx, "topic-1"); err != nil {
		t.Fatalf("create topic: %v", err)
	}

	pub, err := newPubSubPublisher(ctx, PublisherConfig{
		ID:        "ps",
		Type:      TypeGCPPubSub,
		GCPPubSub: &GCPPubSubPublisherConfig{ProjectID: "test-project", Topic: "topic-1"},
	}, nil)
	if err != nil {
		t.Fatalf("newPubSubPublisher: %v", err)
	}

	fanout := NewFanout([]Publisher{pub})
	defer fanout.Close()

	pubCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if n, err := fanout.Publish(pubCtx, sampleEvent()); err != nil || n != 1 {
		t.Fatalf("Publish: n=%d err=%v", n, err)
	}

	msgs := server.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message on the emulator, got %d", len(msgs))
	}
	var got Event
	if err := json.Unmarshal(msgs[0].Data, &got); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if got.Post.ID != "a1" || got.RunID != "run-1" {
		t.Fatalf("unexpected event %+v", got)
	}
	if msgs[0].Attributes["keyword"] != "$NATION" {
		t.Fatalf("unexpected attributes %v", msgs[0].Attributes)
	}
}
