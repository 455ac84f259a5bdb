package nl2sql

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/duckmesh/dbchat/internal/gateway"
	"github.com/duckmesh/dbchat/internal/llm"
	"github.com/duckmesh/dbchat/internal/observability"
	"github.com/duckmesh/dbchat/internal/prompt"
	"github.com/duckmesh/dbchat/internal/transcript"
)

// Database is the slice of the gateway the pipeline depends on.
type Database interface {
	Dialect() gateway.Dialect
	DescribeSchema(ctx context.Context) (string, error)
	Execute(ctx context.Context, sqlText string) (string, error)
}

type Stage string

const (
	StageSchema     Stage = "schema"
	StageGenerate   Stage = "generate"
	StageExecute    Stage = "execute"
	StageSynthesize Stage = "synthesize"
)

type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageOf reports the failing stage of err, if it carries one.
func StageOf(err error) (Stage, bool) {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage, true
	}
	return "", false
}

type Answer struct {
	Text   string `json:"text"`
	SQL    string `json:"sql"`
	Result string `json:"result"`
}

type Pipeline struct {
	LLM    llm.Client
	Logger *slog.Logger
	Clock  func() time.Time
}

// GenerateSQL asks the model for a query answering question. The completion
// is returned as-is; no cleanup or validation is applied.
func (p *Pipeline) GenerateSQL(ctx context.Context, db Database, history []transcript.Turn, question string) (string, error) {
	schema, err := p.describe(ctx, db)
	if err != nil {
		return "", err
	}

	start := p.now()
	text, err := prompt.RenderSQLPrompt(prompt.SQLPromptInput{
		Dialect:  db.Dialect(),
		Schema:   schema,
		History:  history,
		Question: question,
	})
	if err == nil {
		text, err = p.LLM.Complete(ctx, text)
	}
	p.observe(StageGenerate, err, start)
	if err != nil {
		return "", &StageError{Stage: StageGenerate, Err: err}
	}
	p.logger().DebugContext(ctx, "sql_generated", slog.String("sql", text))
	return text, nil
}

// Answer runs one full turn: generate SQL, execute it, then phrase the result.
// The schema is described once for generation and again for synthesis.
func (p *Pipeline) Answer(ctx context.Context, db Database, history []transcript.Turn, question string) (Answer, error) {
	sqlText, err := p.GenerateSQL(ctx, db, history, question)
	if err != nil {
		return Answer{}, err
	}

	schema, err := p.describe(ctx, db)
	if err != nil {
		return Answer{SQL: sqlText}, err
	}

	start := p.now()
	result, err := db.Execute(ctx, sqlText)
	p.observe(StageExecute, err, start)
	if err != nil {
		return Answer{SQL: sqlText}, &StageError{Stage: StageExecute, Err: err}
	}

	start = p.now()
	text, err := prompt.RenderAnswerPrompt(prompt.AnswerPromptInput{
		Schema:   schema,
		History:  history,
		Question: question,
		SQL:      sqlText,
		Result:   result,
	})
	if err == nil {
		text, err = p.LLM.Complete(ctx, text)
	}
	p.observe(StageSynthesize, err, start)
	if err != nil {
		return Answer{SQL: sqlText, Result: result}, &StageError{Stage: StageSynthesize, Err: err}
	}
	return Answer{Text: text, SQL: sqlText, Result: result}, nil
}

func (p *Pipeline) describe(ctx context.Context, db Database) (string, error) {
	start := p.now()
	schema, err := db.DescribeSchema(ctx)
	p.observe(StageSchema, err, start)
	if err != nil {
		return "", &StageError{Stage: StageSchema, Err: err}
	}
	return schema, nil
}

func (p *Pipeline) observe(stage Stage, err error, start time.Time) {
	observability.ObservePipelineStage(string(stage), err != nil, p.now().Sub(start))
}

func (p *Pipeline) now() time.Time {
	if p.Clock != nil {
		return p.Clock()
	}
	return time.Now()
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
