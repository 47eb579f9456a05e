package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethcf/blobkit-proxy/store"
)

type fakeCompleter struct {
	mu       sync.Mutex
	calls    []string
	failN    int
	fixedErr error
}

func (f *fakeCompleter) CompleteJob(_ context.Context, jobID, _ [32]byte, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, hexOf(jobID))
	if f.failN > 0 {
		f.failN--
		return errors.New("transient RPC failure")
	}
	return f.fixedErr
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func hexOf(b [32]byte) string {
	s, _ := decodeIntentKeys(store.CompletionIntent{JobID: "0x" + hexEncode(b[:]), BlobTxHash: "0x" + hexEncode(b[:])})
	return "0x" + hexEncode(s[:])
}

func hexEncode(b []byte) string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexdigits[c>>4]
		out[i*2+1] = hexdigits[c&0x0F]
	}
	return string(out)
}

func newTestIntent(jobID string) store.CompletionIntent {
	return store.CompletionIntent{
		JobID:         jobID,
		BlobTxHash:    jobID,
		CreatedAt:     time.Now(),
		NextAttemptAt: time.Now().Add(-time.Second),
		State:         store.IntentPending,
	}
}

func TestQueueCompletesIntentOnFirstAttempt(t *testing.T) {
	intents := store.NewIntentStore(store.NewKV(store.NewMemory()))
	jobID := "0x" + hexEncode(make([]byte, 32))
	if err := intents.Create(newTestIntent(jobID)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	completer := &fakeCompleter{}
	q := New(intents, completer, 1, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)

	waitUntil(t, func() bool { return completer.callCount() >= 1 })
	waitUntil(t, func() bool {
		_, err := intents.Get(jobID)
		return errors.Is(err, store.ErrKeyNotFound)
	})

	cancel()
	q.Stop()
}

func TestQueueAppliesBackoffOnFailure(t *testing.T) {
	intents := store.NewIntentStore(store.NewKV(store.NewMemory()))
	var jobIDBytes [32]byte
	jobIDBytes[0] = 0x01
	jobID := "0x" + hexEncode(jobIDBytes[:])
	if err := intents.Create(newTestIntent(jobID)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	completer := &fakeCompleter{failN: 1}
	q := New(intents, completer, 1, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)

	waitUntil(t, func() bool { return completer.callCount() >= 1 })
	cancel()
	q.Stop()

	intent, err := intents.Get(jobID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if intent.Attempts != 1 {
		t.Fatalf("expected attempts=1, got %d", intent.Attempts)
	}
	if intent.State != store.IntentPending {
		t.Fatalf("expected state=pending after a single failure, got %s", intent.State)
	}
	if !intent.NextAttemptAt.After(time.Now()) {
		t.Fatalf("expected NextAttemptAt pushed into the future")
	}
}

func TestQueueMarksPermanentlyFailedAfterMaxAttempts(t *testing.T) {
	intents := store.NewIntentStore(store.NewKV(store.NewMemory()))
	jobID := newTestIntent("0xfa11")
	jobID.Attempts = MaxAttempts - 1
	if err := intents.Create(jobID); err != nil {
		t.Fatalf("Create: %v", err)
	}

	completer := &fakeCompleter{failN: 1}
	alerted := make(chan store.CompletionIntent, 1)
	q := New(intents, completer, 1, 10*time.Millisecond).WithAlerter(alertFunc(func(i store.CompletionIntent, _ error) {
		alerted <- i
	}))
	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)

	select {
	case intent := <-alerted:
		if intent.State != store.IntentPermanentlyFailed {
			t.Fatalf("expected permanently_failed, got %s", intent.State)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for alert")
	}
	cancel()
	q.Stop()
}

type alertFunc func(store.CompletionIntent, error)

func (f alertFunc) Alert(i store.CompletionIntent, err error) { f(i, err) }

func TestBackoffForCapsAtMaxBackoff(t *testing.T) {
	if got := backoffFor(30); got != MaxBackoff {
		t.Fatalf("expected backoff capped at %s, got %s", MaxBackoff, got)
	}
	if got := backoffFor(0); got != BaseBackoff {
		t.Fatalf("expected base backoff at attempts=0, got %s", got)
	}
}

func TestQueueStatsTracksCompletionsAndFailures(t *testing.T) {
	intents := store.NewIntentStore(store.NewKV(store.NewMemory()))
	var jobIDBytes [32]byte
	jobIDBytes[1] = 0x02
	jobID := "0x" + hexEncode(jobIDBytes[:])
	if err := intents.Create(newTestIntent(jobID)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	// A second due intent: whichever is attempted first fails and backs off
	// for 10s, so the completion comes from the other one.
	jobIDBytes[1] = 0x03
	otherJobID := "0x" + hexEncode(jobIDBytes[:])
	if err := intents.Create(newTestIntent(otherJobID)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	completer := &fakeCompleter{failN: 1}
	q := New(intents, completer, 1, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)

	waitUntil(t, func() bool { return q.Stats().Failed >= 1 })
	waitUntil(t, func() bool { return q.Stats().Completed >= 1 })

	cancel()
	q.Stop()
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
