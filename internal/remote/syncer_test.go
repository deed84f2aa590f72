package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"crossfund/internal/model"
)

type memoryBackend struct {
	mu      sync.Mutex
	created []model.Contribution
	list    []model.Contribution
	failN   int
	listErr error
	calls   int
}

func (b *memoryBackend) Create(ctx context.Context, rec model.Contribution) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.failN > 0 {
		b.failN--
		return errors.New("backend down")
	}
	b.created = append(b.created, rec)
	return nil
}

func (b *memoryBackend) List(ctx context.Context, projectID string) ([]model.Contribution, error) {
	if b.listErr != nil {
		return nil, b.listErr
	}
	return b.list, nil
}

func testRecord(id string) model.Contribution {
	return model.Contribution{
		ID:        id,
		ProjectID: "p1",
		Chain:     model.ChainEthereum,
		Currency:  model.CurrencyETH,
		Amount:    1,
		USDValue:  2000,
		Status:    model.StatusConfirmed,
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestPersistDropsWhenQueueFull(t *testing.T) {
	s := NewSyncer(&memoryBackend{}, Options{QueueSize: 1}, zap.NewNop())
	s.Persist(testRecord("a"))
	s.Persist(testRecord("b"))
	if s.Pending() != 1 {
		t.Fatalf("expected 1 pending record, got %d", s.Pending())
	}
}

func TestFlushRetriesFailures(t *testing.T) {
	backend := &memoryBackend{failN: 2}
	s := NewSyncer(backend, Options{MaxRetries: 3, RetryDelay: time.Millisecond}, zap.NewNop())
	s.Persist(testRecord("a"))

	if n := s.Flush(context.Background()); n != 1 {
		t.Fatalf("expected 1 flushed record, got %d", n)
	}
	if len(backend.created) != 1 || backend.calls != 3 {
		t.Fatalf("expected success on third call, created=%d calls=%d", len(backend.created), backend.calls)
	}
}

func TestFlushGivesUpWithoutPanicking(t *testing.T) {
	backend := &memoryBackend{failN: 100}
	s := NewSyncer(backend, Options{MaxRetries: 1, RetryDelay: time.Millisecond}, zap.NewNop())
	s.Persist(testRecord("a"))
	if n := s.Flush(context.Background()); n != 0 {
		t.Fatalf("failed record must not count as persisted, got %d", n)
	}
	if len(backend.created) != 0 || backend.calls != 2 {
		t.Fatalf("unexpected backend state: created=%d calls=%d", len(backend.created), backend.calls)
	}
}

func TestRunDrainsQueue(t *testing.T) {
	backend := &memoryBackend{}
	s := NewSyncer(backend, Options{}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	s.Persist(testRecord("a"))
	s.Persist(testRecord("b"))

	deadline := time.Now().Add(2 * time.Second)
	for {
		backend.mu.Lock()
		n := len(backend.created)
		backend.mu.Unlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("worker did not drain queue, created=%d", n)
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFetchFailOpen(t *testing.T) {
	s := NewSyncer(&memoryBackend{listErr: errors.New("down")}, Options{}, zap.NewNop())
	got := s.Fetch(context.Background(), "p1")
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestFetchNormalizesRecords(t *testing.T) {
	hash := "0x" + "ab" + "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcd"
	backend := &memoryBackend{list: []model.Contribution{{
		Chain:    "Ethereum",
		Currency: "eth",
		Amount:   1,
		TxHash:   hash,
	}}}
	s := NewSyncer(backend, Options{}, zap.NewNop())

	got := s.Fetch(context.Background(), "p1")
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	rec := got[0]
	if rec.ProjectID != "p1" || rec.Chain != model.ChainEthereum || rec.Currency != model.CurrencyETH {
		t.Fatalf("record not normalized: %+v", rec)
	}
	if rec.ID != model.DeriveID(model.ChainEthereum, hash) || rec.Status != model.StatusConfirmed {
		t.Fatalf("missing derived fields: %+v", rec)
	}
}

func TestHTTPBackend(t *testing.T) {
	var posted atomic.Int32
	stored := testRecord("ethereum-0123456789abcdef")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/contributions":
			var rec model.Contribution
			if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if posted.Add(1) > 1 {
				w.WriteHeader(http.StatusConflict)
				return
			}
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodGet && r.URL.Path == "/projects/p1/contributions":
			_ = json.NewEncoder(w).Encode(map[string]any{"contributions": []model.Contribution{stored}})
		case r.URL.Path == "/projects/bad/contributions":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL+"/", srv.Client())
	ctx := context.Background()

	if err := b.Create(ctx, stored); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := b.Create(ctx, stored); err != nil {
		t.Fatalf("conflict must be treated as stored: %v", err)
	}

	got, err := b.List(ctx, "p1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !reflect.DeepEqual(got, []model.Contribution{stored}) {
		t.Fatalf("unexpected list: %+v", got)
	}
	if _, err := b.List(ctx, "bad"); err == nil {
		t.Fatalf("expected error on 500")
	}
}

func TestHTTPBackendRejectedIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"error":"bad"}`)
	}))
	defer srv.Close()

	s := NewSyncer(NewHTTPBackend(srv.URL, srv.Client()), Options{MaxRetries: 5, RetryDelay: time.Millisecond}, zap.NewNop())
	s.Persist(testRecord("a"))
	if n := s.Flush(context.Background()); n != 0 {
		t.Fatalf("rejected record must not count as persisted, got %d", n)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single call for a rejected record, got %d", calls.Load())
	}
}

func TestWithRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := withRetry(ctx, 5, time.Hour, func(context.Context) error { return errors.New("fail") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
