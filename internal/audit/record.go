package audit

import (
	"bytes"
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"
)

// Record is one completed chat turn as written to the archive.
type Record struct {
	SessionID  string
	TurnIndex  int
	Dialect    string
	Question   string
	SQL        string
	Answer     string
	ErrorKind  string
	StartedAt  time.Time
	FinishedAt time.Time
}

type parquetTurn struct {
	SessionID      string `parquet:"session_id"`
	TurnIndex      int64  `parquet:"turn_index"`
	Dialect        string `parquet:"dialect"`
	Question       string `parquet:"question"`
	SQL            string `parquet:"sql"`
	Answer         string `parquet:"answer"`
	ErrorKind      string `parquet:"error_kind"`
	StartedUnixMs  int64  `parquet:"started_unix_ms"`
	FinishedUnixMs int64  `parquet:"finished_unix_ms"`
}

func EncodeParquet(records []Record) ([]byte, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("records are required")
	}
	rows := make([]parquetTurn, 0, len(records))
	for _, rec := range records {
		rows = append(rows, parquetTurn{
			SessionID:      rec.SessionID,
			TurnIndex:      int64(rec.TurnIndex),
			Dialect:        rec.Dialect,
			Question:       rec.Question,
			SQL:            rec.SQL,
			Answer:         rec.Answer,
			ErrorKind:      rec.ErrorKind,
			StartedUnixMs:  rec.StartedAt.UnixMilli(),
			FinishedUnixMs: rec.FinishedAt.UnixMilli(),
		})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetTurn](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}
