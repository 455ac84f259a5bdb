package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/duckmesh/dbchat/internal/audit"
	"github.com/duckmesh/dbchat/internal/gateway"
	"github.com/duckmesh/dbchat/internal/llm"
	"github.com/duckmesh/dbchat/internal/nl2sql"
	"github.com/duckmesh/dbchat/internal/transcript"
)

type fakeHandle struct {
	schema     string
	result     string
	executeErr error
	closed     bool
}

func (h *fakeHandle) Dialect() gateway.Dialect { return gateway.DialectSQLite }

func (h *fakeHandle) DescribeSchema(context.Context) (string, error) { return h.schema, nil }

func (h *fakeHandle) Execute(context.Context, string) (string, error) {
	if h.executeErr != nil {
		return "", h.executeErr
	}
	return h.result, nil
}

func (h *fakeHandle) Close() error {
	h.closed = true
	return nil
}

func connectorFor(handle Handle, err error) Connector {
	return func(context.Context, gateway.ConnectParams) (Handle, error) {
		if err != nil {
			return nil, err
		}
		return handle, nil
	}
}

type recorder struct {
	mu      sync.Mutex
	records []audit.Record
}

func (r *recorder) RecordTurn(_ context.Context, rec audit.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func texts(turns []transcript.Turn) []string {
	out := make([]string, 0, len(turns))
	for _, turn := range turns {
		out = append(out, turn.Role.String()+": "+turn.Text)
	}
	return out
}

func TestNewSessionStartsWithGreeting(t *testing.T) {
	session := NewSession("s-1", Options{})
	want := []string{"Assistant: " + transcript.Greeting}
	if diff := cmp.Diff(want, texts(session.Transcript())); diff != "" {
		t.Fatalf("transcript mismatch (-want +got):\n%s", diff)
	}
	if session.Connected() {
		t.Fatal("new session must not be connected")
	}
	if session.State() != StateIdle {
		t.Fatalf("State() = %v", session.State())
	}
}

func TestSubmitAppendsHumanThenAssistant(t *testing.T) {
	handle := &fakeHandle{schema: "CREATE TABLE Artist (ArtistId INTEGER)", result: "n\n3"}
	fake := llm.NewFake(
		llm.FakeReply{Text: "SELECT COUNT(*) AS n FROM Artist;"},
		llm.FakeReply{Text: "There are 3 artists."},
	)
	rec := &recorder{}
	session := NewSession("s-1", Options{
		Answerer:  &nl2sql.Pipeline{LLM: fake},
		Connector: connectorFor(handle, nil),
		Recorder:  rec,
	})
	if err := session.Connect(context.Background(), gateway.ConnectParams{Dialect: gateway.DialectSQLite}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	outcome, err := session.Submit(context.Background(), "how many artists?")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !outcome.OK() {
		t.Fatalf("outcome error = %v", outcome.Err)
	}
	if outcome.SQL != "SELECT COUNT(*) AS n FROM Artist;" {
		t.Fatalf("outcome SQL = %q", outcome.SQL)
	}

	want := []string{
		"Assistant: " + transcript.Greeting,
		"Human: how many artists?",
		"Assistant: There are 3 artists.",
	}
	if diff := cmp.Diff(want, texts(session.Transcript())); diff != "" {
		t.Fatalf("transcript mismatch (-want +got):\n%s", diff)
	}
	if session.State() != StateIdle {
		t.Fatalf("State() = %v after turn", session.State())
	}

	if len(rec.records) != 1 {
		t.Fatalf("recorded turns = %d", len(rec.records))
	}
	wantRecord := audit.Record{
		SessionID: "s-1",
		TurnIndex: 1,
		Dialect:   "sqlite",
		Question:  "how many artists?",
		SQL:       "SELECT COUNT(*) AS n FROM Artist;",
		Answer:    "There are 3 artists.",
	}
	if diff := cmp.Diff(wantRecord, rec.records[0], cmpopts.IgnoreFields(audit.Record{}, "StartedAt", "FinishedAt")); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestSubmitIgnoresBlankInput(t *testing.T) {
	session := NewSession("s-1", Options{})
	for _, text := range []string{"", "   ", "\n\t "} {
		if _, err := session.Submit(context.Background(), text); !errors.Is(err, ErrEmptyInput) {
			t.Fatalf("Submit(%q) error = %v, want ErrEmptyInput", text, err)
		}
	}
	if got := len(session.Transcript()); got != 1 {
		t.Fatalf("transcript length = %d, want 1", got)
	}
}

func TestSubmitFallsBackWhenExecuteFails(t *testing.T) {
	handle := &fakeHandle{schema: "CREATE TABLE Artist (ArtistId INTEGER)", executeErr: errors.New("no such table: Artists")}
	session := NewSession("s-1", Options{
		Answerer:  &nl2sql.Pipeline{LLM: llm.NewFake(llm.FakeReply{Text: "SELECT * FROM Artists;"})},
		Connector: connectorFor(handle, nil),
	})
	if err := session.Connect(context.Background(), gateway.ConnectParams{Dialect: gateway.DialectSQLite}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	outcome, err := session.Submit(context.Background(), "list artists")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if outcome.Err == nil || outcome.Err.Kind != KindExecute {
		t.Fatalf("outcome error = %v, want execute kind", outcome.Err)
	}
	if outcome.Assistant.Text != transcript.Fallback {
		t.Fatalf("assistant text = %q", outcome.Assistant.Text)
	}
	if got := len(session.Transcript()); got != 3 {
		t.Fatalf("transcript length = %d, want 3", got)
	}
}

func TestSubmitWithoutConnectionFallsBack(t *testing.T) {
	session := NewSession("s-1", Options{Answerer: &nl2sql.Pipeline{LLM: llm.NewFake()}})
	outcome, err := session.Submit(context.Background(), "how many tracks?")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if outcome.Err == nil || outcome.Err.Kind != KindNotConnected {
		t.Fatalf("outcome error = %v, want not_connected", outcome.Err)
	}
	if last := session.Transcript()[2]; last.Role != transcript.RoleAssistant || last.Text != transcript.Fallback {
		t.Fatalf("last turn = %+v", last)
	}
}

func TestSubmitClassifiesCanceledContext(t *testing.T) {
	handle := &fakeHandle{schema: "x"}
	session := NewSession("s-1", Options{
		Answerer:  &nl2sql.Pipeline{LLM: llm.NewFake(llm.FakeReply{Err: context.Canceled})},
		Connector: connectorFor(handle, nil),
	})
	if err := session.Connect(context.Background(), gateway.ConnectParams{Dialect: gateway.DialectSQLite}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcome, err := session.Submit(ctx, "q")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if outcome.Err == nil || outcome.Err.Kind != KindCanceled {
		t.Fatalf("outcome error = %v, want canceled", outcome.Err)
	}
}

func TestConnectFailureLeavesSessionUnchanged(t *testing.T) {
	session := NewSession("s-1", Options{
		Connector: GatewayConnector(),
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := session.Connect(ctx, gateway.ConnectParams{
		Dialect:  gateway.DialectPostgres,
		Host:     "127.0.0.1",
		Port:     1,
		User:     "u",
		Password: "p",
		Database: "d",
	})
	var turnErr *TurnError
	if !errors.As(err, &turnErr) || turnErr.Kind != KindConnect {
		t.Fatalf("Connect() error = %v, want connect kind", err)
	}
	if session.Connected() {
		t.Fatal("failed connect must not set a handle")
	}
	if got := len(session.Transcript()); got != 1 {
		t.Fatalf("transcript length = %d, want 1", got)
	}
}

func TestConnectFailureKeepsPreviousHandle(t *testing.T) {
	first := &fakeHandle{}
	session := NewSession("s-1", Options{Connector: connectorFor(first, nil)})
	if err := session.Connect(context.Background(), gateway.ConnectParams{}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	session.connector = connectorFor(nil, errors.New("login failed"))
	if err := session.Connect(context.Background(), gateway.ConnectParams{}); err == nil {
		t.Fatal("expected connect error")
	}
	if !session.Connected() || first.closed {
		t.Fatal("previous handle must survive a failed reconnect")
	}
}

func TestConnectReplacesAndClosesPreviousHandle(t *testing.T) {
	first := &fakeHandle{}
	second := &fakeHandle{}
	session := NewSession("s-1", Options{Connector: connectorFor(first, nil)})
	if err := session.Connect(context.Background(), gateway.ConnectParams{}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	session.connector = connectorFor(second, nil)
	if err := session.Connect(context.Background(), gateway.ConnectParams{}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !first.closed {
		t.Fatal("expected first handle to be closed")
	}
	if err := session.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !second.closed || session.Connected() {
		t.Fatal("expected Close to release the active handle")
	}
}

type blockingAnswerer struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingAnswerer) Answer(context.Context, nl2sql.Database, []transcript.Turn, string) (nl2sql.Answer, error) {
	close(b.entered)
	<-b.release
	return nl2sql.Answer{Text: "done"}, nil
}

func TestSubmitRejectsConcurrentTurn(t *testing.T) {
	answerer := &blockingAnswerer{entered: make(chan struct{}), release: make(chan struct{})}
	session := NewSession("s-1", Options{Answerer: answerer, Connector: connectorFor(&fakeHandle{}, nil)})
	if err := session.Connect(context.Background(), gateway.ConnectParams{}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	done := make(chan Outcome, 1)
	go func() {
		outcome, _ := session.Submit(context.Background(), "first")
		done <- outcome
	}()
	<-answerer.entered

	if session.State() != StateAwaitingResponse {
		t.Fatalf("State() = %v during turn", session.State())
	}
	if _, err := session.Submit(context.Background(), "second"); !errors.Is(err, ErrTurnInProgress) {
		t.Fatalf("Submit() error = %v, want ErrTurnInProgress", err)
	}
	if err := session.Connect(context.Background(), gateway.ConnectParams{}); !errors.Is(err, ErrTurnInProgress) {
		t.Fatalf("Connect() error = %v, want ErrTurnInProgress", err)
	}
	if got := len(session.Transcript()); got != 2 {
		t.Fatalf("transcript length during turn = %d, want 2", got)
	}

	close(answerer.release)
	outcome := <-done
	if outcome.Assistant.Text != "done" {
		t.Fatalf("assistant text = %q", outcome.Assistant.Text)
	}
	if got := len(session.Transcript()); got != 3 {
		t.Fatalf("transcript length = %d, want 3", got)
	}
}

type panickingAnswerer struct {
	calls int
}

func (p *panickingAnswerer) Answer(context.Context, nl2sql.Database, []transcript.Turn, string) (nl2sql.Answer, error) {
	p.calls++
	if p.calls == 1 {
		panic("template exploded")
	}
	return nl2sql.Answer{Text: "recovered", SQL: "SELECT 1"}, nil
}

func TestSubmitRecoversFromAnswererPanic(t *testing.T) {
	rec := &recorder{}
	session := NewSession("s-1", Options{
		Answerer:  &panickingAnswerer{},
		Connector: connectorFor(&fakeHandle{}, nil),
		Recorder:  rec,
	})
	if err := session.Connect(context.Background(), gateway.ConnectParams{}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	outcome, err := session.Submit(context.Background(), "q1")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if outcome.Err == nil || outcome.Err.Kind != KindUnknown {
		t.Fatalf("outcome error = %v, want unknown kind", outcome.Err)
	}
	if outcome.Assistant.Text != transcript.Fallback {
		t.Fatalf("assistant text = %q", outcome.Assistant.Text)
	}
	if session.State() != StateIdle {
		t.Fatalf("State() = %v after panic", session.State())
	}

	outcome, err = session.Submit(context.Background(), "q2")
	if err != nil {
		t.Fatalf("second Submit() error = %v", err)
	}
	if outcome.Assistant.Text != "recovered" {
		t.Fatalf("second assistant text = %q", outcome.Assistant.Text)
	}
	want := []string{
		"Assistant: " + transcript.Greeting,
		"Human: q1",
		"Assistant: " + transcript.Fallback,
		"Human: q2",
		"Assistant: recovered",
	}
	if diff := cmp.Diff(want, texts(session.Transcript())); diff != "" {
		t.Fatalf("transcript mismatch (-want +got):\n%s", diff)
	}
	if len(rec.records) != 2 || rec.records[0].ErrorKind != string(KindUnknown) {
		t.Fatalf("audit records = %+v", rec.records)
	}
}
