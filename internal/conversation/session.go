package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/duckmesh/dbchat/internal/audit"
	"github.com/duckmesh/dbchat/internal/gateway"
	"github.com/duckmesh/dbchat/internal/nl2sql"
	"github.com/duckmesh/dbchat/internal/observability"
	"github.com/duckmesh/dbchat/internal/transcript"
)

var (
	ErrEmptyInput     = errors.New("message text is empty")
	ErrTurnInProgress = errors.New("a turn is already in progress for this session")
	ErrNotConnected   = errors.New("no database connection")
)

// Handle is a live database connection owned by one session.
type Handle interface {
	nl2sql.Database
	Close() error
}

type Connector func(ctx context.Context, params gateway.ConnectParams) (Handle, error)

// GatewayConnector opens real connections through the gateway package.
func GatewayConnector(opts ...gateway.Option) Connector {
	return func(ctx context.Context, params gateway.ConnectParams) (Handle, error) {
		gw, err := gateway.Connect(ctx, params, opts...)
		if err != nil {
			return nil, err
		}
		return gw, nil
	}
}

type Answerer interface {
	Answer(ctx context.Context, db nl2sql.Database, history []transcript.Turn, question string) (nl2sql.Answer, error)
}

type TurnRecorder interface {
	RecordTurn(ctx context.Context, rec audit.Record)
}

type State int

const (
	StateIdle State = iota
	StateAwaitingResponse
)

func (s State) String() string {
	if s == StateAwaitingResponse {
		return "awaiting_response"
	}
	return "idle"
}

type Options struct {
	Answerer  Answerer
	Connector Connector
	Recorder  TurnRecorder
	Logger    *slog.Logger
	Clock     func() time.Time
	Greeting  string
}

// Session holds one user's transcript and connection. Sessions share nothing.
type Session struct {
	id         string
	answerer   Answerer
	connector  Connector
	recorder   TurnRecorder
	logger     *slog.Logger
	now        func() time.Time
	mu         sync.Mutex
	transcript *transcript.Transcript
	handle     Handle
	state      State
}

func NewSession(id string, opts Options) *Session {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	greeting := opts.Greeting
	if greeting == "" {
		greeting = transcript.Greeting
	}
	return &Session{
		id:         id,
		answerer:   opts.Answerer,
		connector:  opts.Connector,
		recorder:   opts.Recorder,
		logger:     logger.With(slog.String("session_id", id)),
		now:        now,
		transcript: transcript.NewWithClock(greeting, now),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Transcript() []transcript.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.Turns()
}

func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle != nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dialect reports the dialect of the current connection, or "" when there is none.
func (s *Session) Dialect() gateway.Dialect {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return ""
	}
	return s.handle.Dialect()
}

// Connect replaces the session's connection. A failed attempt leaves the
// previous connection and the transcript as they were.
func (s *Session) Connect(ctx context.Context, params gateway.ConnectParams) error {
	if s.connector == nil {
		return &TurnError{Kind: KindConnect, Err: fmt.Errorf("no connector configured")}
	}
	s.mu.Lock()
	busy := s.state == StateAwaitingResponse
	s.mu.Unlock()
	if busy {
		return ErrTurnInProgress
	}

	dialect := params.Dialect
	if dialect == "" {
		dialect = gateway.DialectMSSQL
	}
	handle, err := s.connector(ctx, params)
	observability.ObserveConnectAttempt(string(dialect), err != nil)
	if err != nil {
		s.logger.WarnContext(ctx, "connect_failed",
			slog.String("dialect", string(dialect)),
			slog.String("host", params.Host),
			slog.String("database", params.Database),
			slog.Any("error", err),
		)
		return &TurnError{Kind: KindConnect, Err: err}
	}

	s.mu.Lock()
	if s.state == StateAwaitingResponse {
		s.mu.Unlock()
		_ = handle.Close()
		return ErrTurnInProgress
	}
	previous := s.handle
	s.handle = handle
	s.mu.Unlock()

	if previous != nil {
		if err := previous.Close(); err != nil {
			s.logger.WarnContext(ctx, "close_previous_connection_failed", slog.Any("error", err))
		}
	}
	s.logger.InfoContext(ctx, "connected",
		slog.String("dialect", string(dialect)),
		slog.String("host", params.Host),
		slog.String("database", params.Database),
	)
	return nil
}

// Submit runs one chat turn. Blank text is rejected with ErrEmptyInput and
// leaves the transcript untouched. Otherwise exactly one Human and one
// Assistant turn are appended, whether or not the pipeline succeeds.
func (s *Session) Submit(ctx context.Context, text string) (Outcome, error) {
	if strings.TrimSpace(text) == "" {
		return Outcome{}, ErrEmptyInput
	}

	s.mu.Lock()
	if s.state == StateAwaitingResponse {
		s.mu.Unlock()
		return Outcome{}, ErrTurnInProgress
	}
	human := s.transcript.AppendHuman(text)
	turnIndex := s.transcript.Len() - 1
	history := s.transcript.Turns()
	handle := s.handle
	s.state = StateAwaitingResponse
	s.mu.Unlock()

	started := s.now()
	var answer nl2sql.Answer
	var err error
	switch {
	case handle == nil:
		err = ErrNotConnected
	case s.answerer == nil:
		err = fmt.Errorf("no answerer configured")
	default:
		answer, err = s.answer(ctx, handle, history, text)
	}

	reply := answer.Text
	var turnErr *TurnError
	if err != nil {
		turnErr = classify(ctx, err)
		reply = transcript.Fallback
	}

	s.mu.Lock()
	assistant := s.transcript.AppendAssistant(reply)
	s.state = StateIdle
	s.mu.Unlock()

	finished := s.now()
	outcome := Outcome{Human: human, Assistant: assistant, SQL: answer.SQL, Err: turnErr}
	s.finishTurn(ctx, outcome, turnIndex, handle, started, finished)
	return outcome, nil
}

// answer turns a panic in the answerer into an error so the turn still ends
// with an Assistant reply and the session returns to Idle.
func (s *Session) answer(ctx context.Context, handle Handle, history []transcript.Turn, text string) (answer nl2sql.Answer, err error) {
	defer func() {
		if r := recover(); r != nil {
			answer = nl2sql.Answer{}
			err = fmt.Errorf("answerer panic: %v", r)
		}
	}()
	return s.answerer.Answer(ctx, handle, history, text)
}

func (s *Session) finishTurn(ctx context.Context, outcome Outcome, turnIndex int, handle Handle, started, finished time.Time) {
	kind := ""
	if outcome.Err != nil {
		kind = string(outcome.Err.Kind)
		s.logger.WarnContext(ctx, "turn_failed",
			slog.String("kind", kind),
			slog.String("sql", outcome.SQL),
			slog.Any("error", outcome.Err.Err),
		)
	}
	observability.ObserveTurn(kind, finished.Sub(started))

	if s.recorder == nil {
		return
	}
	dialect := ""
	if handle != nil {
		dialect = string(handle.Dialect())
	}
	s.recorder.RecordTurn(context.WithoutCancel(ctx), audit.Record{
		SessionID:  s.id,
		TurnIndex:  turnIndex,
		Dialect:    dialect,
		Question:   outcome.Human.Text,
		SQL:        outcome.SQL,
		Answer:     outcome.Assistant.Text,
		ErrorKind:  kind,
		StartedAt:  started,
		FinishedAt: finished,
	})
}

// Close releases the connection. The transcript stays readable.
func (s *Session) Close() error {
	s.mu.Lock()
	handle := s.handle
	s.handle = nil
	s.mu.Unlock()
	if handle == nil {
		return nil
	}
	return handle.Close()
}
