package audit

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/eyeinthesky6/indexpilot-sub002/logging"
)

func TestLogSink_NeverErrors(t *testing.T) {
	s := NewLogSink(logging.NewLogger(logging.DEBUG, io.Discard))
	if err := s.Emit(context.Background(), Event{Action: "index_created", Table: "orders", Field: "customer_id"}); err != nil {
		t.Fatalf("expected LogSink.Emit to never error, got %v", err)
	}
}

type recordingSink struct {
	events []Event
	err    error
}

func (r *recordingSink) Emit(ctx context.Context, e Event) error {
	r.events = append(r.events, e)
	return r.err
}

func TestMultiSink_FansOutToEverySink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	m := NewMultiSink(a, b)

	e := Event{Action: "index_created", Table: "orders"}
	if err := m.Emit(context.Background(), e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Fatalf("expected both sinks to receive the event, got a=%d b=%d", len(a.events), len(b.events))
	}
}

func TestMultiSink_ContinuesPastFailingSink(t *testing.T) {
	failing := &recordingSink{err: errors.New("downstream unavailable")}
	ok := &recordingSink{}
	m := NewMultiSink(failing, ok)

	err := m.Emit(context.Background(), Event{Action: "index_created"})
	if err == nil {
		t.Fatal("expected the first sink's error to propagate")
	}
	if len(ok.events) != 1 {
		t.Fatal("expected the second sink to still receive the event despite the first failing")
	}
}

func TestMultiSink_NoSinksIsANoOp(t *testing.T) {
	m := NewMultiSink()
	if err := m.Emit(context.Background(), Event{Action: "index_created"}); err != nil {
		t.Fatalf("expected no error with zero sinks, got %v", err)
	}
}
