package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/duckmesh/dbchat/internal/nl2sql"
	"github.com/duckmesh/dbchat/internal/transcript"
)

type Kind string

const (
	KindConnect      Kind = "connect"
	KindNotConnected Kind = "not_connected"
	KindSchema       Kind = "schema"
	KindGenerate     Kind = "generate"
	KindExecute      Kind = "execute"
	KindSynthesize   Kind = "synthesize"
	KindCanceled     Kind = "canceled"
	KindUnknown      Kind = "unknown"
)

type TurnError struct {
	Kind Kind
	Err  error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *TurnError) Unwrap() error {
	return e.Err
}

// Outcome describes a finished turn. Err is nil on success; on failure the
// Assistant turn carries the fallback text and Err says why.
type Outcome struct {
	Human     transcript.Turn
	Assistant transcript.Turn
	SQL       string
	Err       *TurnError
}

func (o Outcome) OK() bool {
	return o.Err == nil
}

func classify(ctx context.Context, err error) *TurnError {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return &TurnError{Kind: KindCanceled, Err: err}
	}
	if errors.Is(err, ErrNotConnected) {
		return &TurnError{Kind: KindNotConnected, Err: err}
	}
	stage, ok := nl2sql.StageOf(err)
	if !ok {
		return &TurnError{Kind: KindUnknown, Err: err}
	}
	switch stage {
	case nl2sql.StageSchema:
		return &TurnError{Kind: KindSchema, Err: err}
	case nl2sql.StageGenerate:
		return &TurnError{Kind: KindGenerate, Err: err}
	case nl2sql.StageExecute:
		return &TurnError{Kind: KindExecute, Err: err}
	case nl2sql.StageSynthesize:
		return &TurnError{Kind: KindSynthesize, Err: err}
	default:
		return &TurnError{Kind: KindUnknown, Err: err}
	}
}
