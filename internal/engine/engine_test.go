package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xiaot623/livedesk/internal/buffer"
	"github.com/xiaot623/livedesk/internal/domain"
	"github.com/xiaot623/livedesk/internal/reconcile"
)

// fakeBackend implements Backend with per-test hooks.
type fakeBackend struct {
	mu          sync.Mutex
	transcripts map[string][]domain.ServerRecord
	sessions    []domain.SessionSummary

	sendFn func(ctx context.Context, sessionID, body string, vis domain.Visibility) (domain.ServerRecord, error)

	// fetchGate, when set, blocks FetchTranscript until closed.
	fetchGate chan struct{}
}

func (f *fakeBackend) FetchTranscript(ctx context.Context, sessionID string, filter domain.VisibilityFilter) ([]domain.ServerRecord, error) {
	f.mu.Lock()
	gate := f.fetchGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ServerRecord(nil), f.transcripts[sessionID]...), nil
}

func (f *fakeBackend) SendMessage(ctx context.Context, sessionID, body string, vis domain.Visibility) (domain.ServerRecord, error) {
	f.mu.Lock()
	fn := f.sendFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, sessionID, body, vis)
	}
	return domain.ServerRecord{}, errors.New("no sendFn configured")
}

func (f *fakeBackend) FetchSessionList(ctx context.Context) ([]domain.SessionSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.SessionSummary(nil), f.sessions...), nil
}

func (f *fakeBackend) setTranscript(sessionID string, records ...domain.ServerRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transcripts == nil {
		f.transcripts = make(map[string][]domain.ServerRecord)
	}
	f.transcripts[sessionID] = records
}

func newTestEngine(t *testing.T, fb *fakeBackend) *Engine {
	t.Helper()
	buf := buffer.New()
	rec := reconcile.New(buf, 5*time.Second)
	gen := domain.NewLocalIDGenerator("test")
	return New(fb, buf, rec, gen, nil, time.Second)
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSendThenImmediatePollRace(t *testing.T) {
	release := make(chan domain.ServerRecord, 1)
	fb := &fakeBackend{
		sendFn: func(ctx context.Context, sessionID, body string, vis domain.Visibility) (domain.ServerRecord, error) {
			return <-release, nil
		},
	}
	eng := newTestEngine(t, fb)
	eng.SelectSession("s1")

	msg, err := eng.Send("s1", "hello", domain.VisibilityPublic)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	// The optimistic entry renders before the transport resolves.
	got := eng.Transcript("s1")
	if len(got) != 1 || got[0].State != domain.MessageStatePending || got[0].LocalID != msg.LocalID {
		t.Fatalf("expected one pending entry, got %+v", got)
	}

	// A poll lands before the send resolves, not yet containing "hello".
	if err := eng.RefreshActiveTranscript(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	got = eng.Transcript("s1")
	if len(got) != 1 || got[0].State != domain.MessageStatePending {
		t.Fatalf("poll must not drop the in-flight pending entry: %+v", got)
	}

	// Transport resolves with the server identity.
	release <- domain.ServerRecord{
		ID: "msg_99", SessionID: "s1", AuthorRole: domain.RoleAgent,
		Body: "hello", Visibility: domain.VisibilityPublic, CreatedAt: time.Now(),
	}
	waitFor(t, func() bool {
		tr := eng.Transcript("s1")
		return len(tr) == 1 && tr[0].State == domain.MessageStateConfirmed && tr[0].ServerID == "msg_99"
	}, "entry to confirm as msg_99")

	// The next poll includes the record; still exactly one occurrence.
	fb.setTranscript("s1", domain.ServerRecord{
		ID: "msg_99", SessionID: "s1", AuthorRole: domain.RoleAgent,
		Body: "hello", Visibility: domain.VisibilityPublic, CreatedAt: time.Now(),
	})
	if err := eng.RefreshActiveTranscript(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	got = eng.Transcript("s1")
	if len(got) != 1 || got[0].ServerID != "msg_99" {
		t.Fatalf("expected exactly one msg_99 after the covering poll, got %+v", got)
	}
}

func TestSendRejectsEmptyBody(t *testing.T) {
	eng := newTestEngine(t, &fakeBackend{})
	if _, err := eng.Send("s1", "   \n\t", domain.VisibilityPublic); !errors.Is(err, domain.ErrEmptyBody) {
		t.Fatalf("expected ErrEmptyBody, got %v", err)
	}
	if len(eng.Transcript("s1")) != 0 {
		t.Fatalf("validation failures must not create transcript entries")
	}
}

func TestFailedSendAndRetry(t *testing.T) {
	failNext := true
	fb := &fakeBackend{}
	fb.sendFn = func(ctx context.Context, sessionID, body string, vis domain.Visibility) (domain.ServerRecord, error) {
		fb.mu.Lock()
		fail := failNext
		fb.mu.Unlock()
		if fail {
			return domain.ServerRecord{}, errors.New("connection refused")
		}
		return domain.ServerRecord{
			ID: "msg_7", SessionID: sessionID, AuthorRole: domain.RoleAgent,
			Body: body, Visibility: vis, CreatedAt: time.Now(),
		}, nil
	}
	eng := newTestEngine(t, fb)
	eng.SelectSession("s1")

	msg, err := eng.Send("s1", "are you there?", domain.VisibilityPublic)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	waitFor(t, func() bool {
		tr := eng.Transcript("s1")
		return len(tr) == 1 && tr[0].State == domain.MessageStateFailed
	}, "entry to fail")
	if got := eng.Transcript("s1")[0]; got.FailReason != "connection refused" {
		t.Fatalf("expected failure reason on the entry, got %+v", got)
	}

	// Retry re-drives the body under a fresh local id.
	fb.mu.Lock()
	failNext = false
	fb.mu.Unlock()

	retried, err := eng.Retry("s1", msg.LocalID)
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if retried.LocalID == msg.LocalID {
		t.Fatalf("retry must mint a new local id")
	}

	waitFor(t, func() bool {
		tr := eng.Transcript("s1")
		return len(tr) == 1 && tr[0].State == domain.MessageStateConfirmed && tr[0].ServerID == "msg_7"
	}, "retried entry to confirm")
}

func TestTwoSendsInFlightPreserveOrder(t *testing.T) {
	gates := map[string]chan domain.ServerRecord{
		"A": make(chan domain.ServerRecord, 1),
		"B": make(chan domain.ServerRecord, 1),
	}
	fb := &fakeBackend{
		sendFn: func(ctx context.Context, sessionID, body string, vis domain.Visibility) (domain.ServerRecord, error) {
			return <-gates[body], nil
		},
	}
	eng := newTestEngine(t, fb)
	eng.SelectSession("s1")

	if _, err := eng.Send("s1", "A", domain.VisibilityPublic); err != nil {
		t.Fatalf("Send A failed: %v", err)
	}
	if _, err := eng.Send("s1", "B", domain.VisibilityPublic); err != nil {
		t.Fatalf("Send B failed: %v", err)
	}

	got := eng.Transcript("s1")
	if len(got) != 2 || got[0].Body != "A" || got[1].Body != "B" {
		t.Fatalf("expected pending A then B, got %+v", got)
	}

	// B resolves first; A stays pending and the order holds.
	gates["B"] <- domain.ServerRecord{
		ID: "msg_b", SessionID: "s1", AuthorRole: domain.RoleAgent,
		Body: "B", Visibility: domain.VisibilityPublic, CreatedAt: time.Now().Add(time.Second),
	}
	waitFor(t, func() bool {
		tr := eng.Transcript("s1")
		return len(tr) == 2 && tr[1].State == domain.MessageStateConfirmed
	}, "B to confirm")

	got = eng.Transcript("s1")
	if got[0].Body != "A" || got[0].State != domain.MessageStatePending {
		t.Fatalf("A must remain pending in place, got %+v", got)
	}
	if got[1].Body != "B" || got[1].ServerID != "msg_b" {
		t.Fatalf("B must confirm in place, got %+v", got)
	}

	gates["A"] <- domain.ServerRecord{
		ID: "msg_a", SessionID: "s1", AuthorRole: domain.RoleAgent,
		Body: "A", Visibility: domain.VisibilityPublic, CreatedAt: time.Now().Add(2 * time.Second),
	}
	waitFor(t, func() bool {
		tr := eng.Transcript("s1")
		for _, m := range tr {
			if m.State != domain.MessageStateConfirmed {
				return false
			}
		}
		return len(tr) == 2
	}, "A to confirm")
}

func TestStaleFetchNeverReconciled(t *testing.T) {
	gate := make(chan struct{})
	fb := &fakeBackend{fetchGate: gate}
	fb.setTranscript("s1", domain.ServerRecord{
		ID: "old_1", SessionID: "s1", AuthorRole: domain.RoleCustomer,
		Body: "from s1", Visibility: domain.VisibilityPublic, CreatedAt: time.Now(),
	})
	eng := newTestEngine(t, fb)
	eng.SelectSession("s1")

	// Fetch for s1 goes in flight...
	done := make(chan error, 1)
	go func() { done <- eng.RefreshActiveTranscript(context.Background()) }()

	// ...and the user switches to s2 before it resolves.
	time.Sleep(10 * time.Millisecond)
	eng.SelectSession("s2")

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	if got := eng.Transcript("s2"); len(got) != 0 {
		t.Fatalf("stale s1 response must not touch s2: %+v", got)
	}
	if got := eng.Transcript("s1"); len(got) != 0 {
		t.Fatalf("stale s1 response must be discarded entirely: %+v", got)
	}

	// Returning to s1 reconciles its buffer against a fresh fetch.
	fb.mu.Lock()
	fb.fetchGate = nil
	fb.mu.Unlock()

	eng.SelectSession("s1")
	if err := eng.RefreshActiveTranscript(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if got := eng.Transcript("s1"); len(got) != 1 || got[0].ServerID != "old_1" {
		t.Fatalf("fresh s1 fetch should reconcile normally, got %+v", got)
	}
}

func TestSwitchKeepsBufferedEntriesForReturn(t *testing.T) {
	release := make(chan domain.ServerRecord)
	fb := &fakeBackend{
		sendFn: func(ctx context.Context, sessionID, body string, vis domain.Visibility) (domain.ServerRecord, error) {
			return <-release, nil
		},
	}
	eng := newTestEngine(t, fb)
	eng.SelectSession("s1")

	if _, err := eng.Send("s1", "hold on", domain.VisibilityPublic); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	eng.SelectSession("s2")
	eng.SelectSession("s1")

	got := eng.Transcript("s1")
	if len(got) != 1 || got[0].State != domain.MessageStatePending {
		t.Fatalf("pending entry must survive a session switch, got %+v", got)
	}
	close(release)
}

func TestDismissRemovesFailedEntry(t *testing.T) {
	fb := &fakeBackend{
		sendFn: func(ctx context.Context, sessionID, body string, vis domain.Visibility) (domain.ServerRecord, error) {
			return domain.ServerRecord{}, errors.New("boom")
		},
	}
	eng := newTestEngine(t, fb)
	eng.SelectSession("s1")

	msg, err := eng.Send("s1", "oops", domain.VisibilityPublic)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	waitFor(t, func() bool {
		tr := eng.Transcript("s1")
		return len(tr) == 1 && tr[0].State == domain.MessageStateFailed
	}, "entry to fail")

	if err := eng.Dismiss("s1", msg.LocalID); err != nil {
		t.Fatalf("Dismiss failed: %v", err)
	}
	if got := eng.Transcript("s1"); len(got) != 0 {
		t.Fatalf("dismissed entry still rendered: %+v", got)
	}
}

func TestCloseSessionClearsViewState(t *testing.T) {
	fb := &fakeBackend{
		sendFn: func(ctx context.Context, sessionID, body string, vis domain.Visibility) (domain.ServerRecord, error) {
			return domain.ServerRecord{}, errors.New("boom")
		},
	}
	eng := newTestEngine(t, fb)
	eng.SelectSession("s1")
	if _, err := eng.Send("s1", "bye", domain.VisibilityPublic); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	eng.CloseSession("s1")
	if eng.ActiveSession() != "" {
		t.Fatalf("closing the active session must deselect it")
	}
	if got := eng.Transcript("s1"); len(got) != 0 {
		t.Fatalf("closed session still has a transcript: %+v", got)
	}
}

func TestRefreshSessionsPublishes(t *testing.T) {
	fb := &fakeBackend{
		sessions: []domain.SessionSummary{
			{SessionID: "s1", LastMessage: "hi", UnreadCount: 2},
			{SessionID: "s2"},
		},
	}
	eng := newTestEngine(t, fb)

	if err := eng.RefreshSessions(context.Background()); err != nil {
		t.Fatalf("RefreshSessions failed: %v", err)
	}
	got := eng.Sessions()
	if len(got) != 2 || got[0].SessionID != "s1" || got[0].UnreadCount != 2 {
		t.Fatalf("unexpected session list: %+v", got)
	}
}
