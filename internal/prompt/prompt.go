package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/duckmesh/dbchat/internal/gateway"
	"github.com/duckmesh/dbchat/internal/transcript"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("prompts").Option("missingkey=error").ParseFS(templateFS, "templates/*.tmpl"))

type Example struct {
	Question string
	SQL      string
}

var mssqlExamples = []Example{
	{
		Question: "which 3 artists have the most tracks?",
		SQL:      "SELECT TOP 3 ArtistId, COUNT(*) as track_count FROM Track GROUP BY ArtistId ORDER BY track_count DESC;",
	},
	{
		Question: "Name 10 artists",
		SQL:      "SELECT TOP 10 Name FROM Artist;",
	},
}

var limitExamples = []Example{
	{
		Question: "which 3 artists have the most tracks?",
		SQL:      "SELECT ArtistId, COUNT(*) as track_count FROM Track GROUP BY ArtistId ORDER BY track_count DESC LIMIT 3;",
	},
	{
		Question: "Name 10 artists",
		SQL:      "SELECT Name FROM Artist LIMIT 10;",
	},
}

// ExamplesFor returns the fixed few-shot pair written in the dialect's syntax.
func ExamplesFor(dialect gateway.Dialect) []Example {
	source := limitExamples
	if dialect == gateway.DialectMSSQL || dialect == "" {
		source = mssqlExamples
	}
	out := make([]Example, len(source))
	copy(out, source)
	return out
}

type SQLPromptInput struct {
	Dialect  gateway.Dialect
	Schema   string
	History  []transcript.Turn
	Question string
}

type AnswerPromptInput struct {
	Schema   string
	History  []transcript.Turn
	Question string
	SQL      string
	Result   string
}

func RenderSQLPrompt(in SQLPromptInput) (string, error) {
	dialect := in.Dialect
	if dialect == "" {
		dialect = gateway.DialectMSSQL
	}
	return execute("sql.tmpl", map[string]any{
		"DialectName": dialect.DisplayName(),
		"Schema":      in.Schema,
		"History":     FormatHistory(in.History),
		"Examples":    ExamplesFor(dialect),
		"Question":    in.Question,
	})
}

func RenderAnswerPrompt(in AnswerPromptInput) (string, error) {
	return execute("answer.tmpl", map[string]any{
		"Schema":   in.Schema,
		"History":  FormatHistory(in.History),
		"Question": in.Question,
		"SQL":      in.SQL,
		"Result":   in.Result,
	})
}

// FormatHistory renders one "Role: text" line per turn, oldest first.
func FormatHistory(turns []transcript.Turn) string {
	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		lines = append(lines, turn.Role.String()+": "+turn.Text)
	}
	return strings.Join(lines, "\n")
}

func execute(name string, data map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
