package gateway

import (
	"fmt"
	"strings"
	"time"
)

const maxSampleValueLen = 100

var rowKeywords = map[string]struct{}{
	"select":   {},
	"with":     {},
	"show":     {},
	"pragma":   {},
	"explain":  {},
	"values":   {},
	"table":    {},
	"describe": {},
}

// batchKeywords start T-SQL batches that may or may not produce a result set.
var batchKeywords = map[string]struct{}{
	"exec":    {},
	"execute": {},
	"declare": {},
}

func (d Dialect) returnsRows(sqlText string) bool {
	keyword := firstKeyword(sqlText)
	if _, ok := rowKeywords[keyword]; ok {
		return true
	}
	if d == DialectMSSQL {
		_, ok := batchKeywords[keyword]
		return ok
	}
	return false
}

// firstKeyword returns the lower-cased leading keyword, skipping comments
// and opening parentheses.
func firstKeyword(sqlText string) string {
	rest := sqlText
	for {
		rest = strings.TrimLeft(rest, " \t\r\n(")
		switch {
		case strings.HasPrefix(rest, "--"):
			idx := strings.IndexByte(rest, '\n')
			if idx < 0 {
				return ""
			}
			rest = rest[idx+1:]
		case strings.HasPrefix(rest, "/*"):
			idx := strings.Index(rest, "*/")
			if idx < 0 {
				return ""
			}
			rest = rest[idx+2:]
		default:
			end := strings.IndexFunc(rest, func(r rune) bool {
				return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
			})
			if end < 0 {
				end = len(rest)
			}
			return strings.ToLower(rest[:end])
		}
	}
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func formatValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return "NULL"
	case string:
		return typed
	case time.Time:
		return typed.Format(time.RFC3339)
	default:
		return fmt.Sprint(typed)
	}
}

func renderResult(columns []string, rows [][]any) string {
	if len(columns) == 0 {
		return "(no result set)"
	}
	var b strings.Builder
	b.WriteString(strings.Join(columns, " | "))
	if len(rows) == 0 {
		b.WriteString("\n(0 rows)")
		return b.String()
	}
	cells := make([]string, len(columns))
	for _, row := range rows {
		for i := range cells {
			cells[i] = ""
			if i < len(row) {
				cells[i] = formatValue(row[i])
			}
		}
		b.WriteString("\n")
		b.WriteString(strings.Join(cells, " | "))
	}
	return b.String()
}

func writeSampleRows(b *strings.Builder, tableName string, columns []string, rows [][]any, limit int) {
	fmt.Fprintf(b, "\n\n/*\n%d rows from %s table:\n", limit, tableName)
	b.WriteString(strings.Join(columns, "\t"))
	cells := make([]string, len(columns))
	for _, row := range rows {
		for i := range cells {
			cells[i] = ""
			if i < len(row) {
				cells[i] = truncate(formatValue(row[i]), maxSampleValueLen)
			}
		}
		b.WriteString("\n")
		b.WriteString(strings.Join(cells, "\t"))
	}
	b.WriteString("\n*/")
}

func truncate(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max])
}
