package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"crossfund/internal/model"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	fail   bool
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail {
		return errors.New("broker down")
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.msgs)
}

func TestKafkaPublisherPublishesKeyedEvents(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, KafkaConfig{BatchSize: 10}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	sub := p.Subscriber()
	sub("contribution", model.Contribution{ID: "a", ProjectID: "p1"})
	sub("contribution", model.Contribution{ID: "b", ProjectID: "p2"})

	deadline := time.Now().Add(2 * time.Second)
	for w.count() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("events not published, got %d", w.count())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if string(w.msgs[0].Key) != "p1" || string(w.msgs[1].Key) != "p2" {
		t.Fatalf("unexpected keys: %q %q", w.msgs[0].Key, w.msgs[1].Key)
	}
	var ev Event
	if err := json.Unmarshal(w.msgs[0].Value, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.Event != "contribution" || ev.Contribution.ID != "a" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestKafkaPublisherDropsWhenBufferFull(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, KafkaConfig{BufferSize: 1}, zap.NewNop())
	sub := p.Subscriber()
	sub("contribution", model.Contribution{ID: "a", ProjectID: "p1"})
	sub("contribution", model.Contribution{ID: "b", ProjectID: "p1"})

	if len(p.queue) != 1 {
		t.Fatalf("expected 1 buffered event, got %d", len(p.queue))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if w.count() != 1 {
		t.Fatalf("expected buffered event flushed on shutdown, got %d", w.count())
	}
}

func TestKafkaPublisherSurvivesWriteFailure(t *testing.T) {
	w := &fakeWriter{fail: true}
	p := newKafkaPublisher(w, KafkaConfig{}, zap.NewNop())
	p.Subscriber()("contribution", model.Contribution{ID: "a", ProjectID: "p1"})
	p.write(context.Background(), p.drain(nil))
	if w.count() != 0 {
		t.Fatalf("expected no messages stored")
	}
	if err := p.Close(); err != nil || !w.closed {
		t.Fatalf("close failed: %v", err)
	}
}
