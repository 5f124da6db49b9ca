package publishers

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type stubPublisher struct {
	id     string
	typ    string
	err    error
	calls  int
	closed bool
}

func (s *stubPublisher) ID() string   { return s.id }
func (s *stubPublisher) Type() string { return s.typ }
func (s *stubPublisher) Publish(context.Context, Event) error {
	s.calls++
	return s.err
}
func (s *stubPublisher) Close() error {
	s.closed = true
	return nil
}

func TestFanoutPublishAggregatesErrors(t *testing.T) {
	ok := &stubPublisher{id: "ok", typ: "http"}
	bad := &stubPublisher{id: "bad", typ: "http", err: errors.New("failed")}
	fanout := NewFanout([]Publisher{ok, nil, bad})

	if fanout.Size() != 2 {
		t.Fatalf("expected nil publishers to be dropped, size=%d", fanout.Size())
	}
	count, err := fanout.Publish(context.Background(), sampleEvent())
	if count != 1 {
		t.Fatalf("expected 1 success, got %d", count)
	}
	if err == nil {
		t.Fatalf("expected aggregated error")
	}
	if err := fanout.Close(); err != nil || !ok.closed || !bad.closed {
		t.Fatalf("expected every publisher closed, err=%v", err)
	}
}

func TestNilFanoutIsNoop(t *testing.T) {
	var f *Fanout
	if n, err := f.Publish(context.Background(), Event{}); n != 0 || err != nil {
		t.Fatalf("nil fanout must be a no-op, n=%d err=%v", n, err)
	}
}

func TestBuildAllWithDefaultRegistry(t *testing.T) {
	reg := DefaultRegistry()
	pubs, err := BuildAll(context.Background(), reg, []PublisherConfig{
		{ID: "http", Type: TypeHTTP, HTTP: &HTTPPublisherConfig{URL: "https://example.com"}},
	}, nil)
	if err != nil {
		t.Fatalf("BuildAll: %v", err)
	}
	if len(pubs) != 1 {
		t.Fatalf("expected 1 publisher, got %d", len(pubs))
	}

	if _, err := BuildAll(context.Background(), reg, []PublisherConfig{{ID: "x", Type: "kafka"}}, nil); err == nil {
		t.Fatalf("expected error for unknown publisher type")
	}
}

func TestFanoutKeepsSinkOrderInErrors(t *testing.T) {
	first := &stubPublisher{id: "first", typ: "sqs", err: errors.New("queue down")}
	second := &stubPublisher{id: "second", typ: "sns", err: errors.New("topic down")}
	third := &stubPublisher{id: "third", typ: "http"}

	n, err := NewFanout([]Publisher{first, second, third}).Publish(context.Background(), sampleEvent())
	if n != 1 {
		t.Fatalf("expected 1 delivery, got %d", n)
	}
	if err == nil {
		t.Fatalf("expected joined error")
	}
	msg := err.Error()
	if i, j := strings.Index(msg, "publisher[first]"), strings.Index(msg, "publisher[second]"); i < 0 || j < 0 || i > j {
		t.Fatalf("errors out of sink order: %q", msg)
	}
	if first.calls != 1 || second.calls != 1 || third.calls != 1 {
		t.Fatalf("every sink must be attempted once: %d %d %d", first.calls, second.calls, third.calls)
	}
}

func TestBuildAllSkipsDisabled(t *testing.T) {
	off := false
	built := 0
	reg := NewRegistry(map[string]Builder{
		"stub": func(_ context.Context, cfg PublisherConfig, _ Logger) (Publisher, error) {
			built++
			return &stubPublisher{id: cfg.ID, typ: "stub"}, nil
		},
	})

	pubs, err := BuildAll(context.Background(), reg, []PublisherConfig{
		{ID: "on", Type: "stub"},
		{ID: "off", Type: "stub", Enabled: &off},
	}, nil)
	if err != nil {
		t.Fatalf("BuildAll: %v", err)
	}
	if len(pubs) != 1 || pubs[0].ID() != "on" || built != 1 {
		t.Fatalf("expected only the enabled sink, got %d built=%d", len(pubs), built)
	}
}

func TestBuildAllClosesBuiltOnFailure(t *testing.T) {
	first := &stubPublisher{id: "first", typ: "stub"}
	reg := NewRegistry(map[string]Builder{
		"stub": func(context.Context, PublisherConfig, Logger) (Publisher, error) { return first, nil },
	})

	_, err := BuildAll(context.Background(), reg, []PublisherConfig{
		{ID: "first", Type: "stub"},
		{ID: "second", Type: "kafka"},
	}, nil)
	if err == nil || !strings.Contains(err.Error(), `unknown type "kafka"`) {
		t.Fatalf("expected unknown type error, got %v", err)
	}
	if !strings.Contains(err.Error(), "known: stub") {
		t.Fatalf("error should list known types: %v", err)
	}
	if !first.closed {
		t.Fatalf("already built publisher was not closed")
	}
}

func TestRegistryTypesSorted(t *testing.T) {
	got := DefaultRegistry().Types()
	want := []string{TypeGCPPubSub, TypeHTTP, TypeSNS, TypeSQS}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("Types() = %v, want %v", got, want)
	}
}
