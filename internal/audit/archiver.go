package audit

import (
	"bytes"
	"context"
	"io"
	"log/slog"

	"github.com/duckmesh/dbchat/internal/observability"
	"github.com/duckmesh/dbchat/internal/storage"
)

const parquetContentType = "application/vnd.apache.parquet"

// Archiver writes each turn to an object store. Write failures are logged and
// swallowed so archiving never changes what the user sees.
type Archiver struct {
	store  storage.ObjectStore
	logger *slog.Logger
}

func NewArchiver(store storage.ObjectStore, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Archiver{store: store, logger: logger}
}

func (a *Archiver) RecordTurn(ctx context.Context, rec Record) {
	if err := a.write(ctx, rec); err != nil {
		observability.ObserveAuditWrite(true)
		a.logger.WarnContext(ctx, "audit_write_failed",
			slog.String("session_id", rec.SessionID),
			slog.Int("turn_index", rec.TurnIndex),
			slog.Any("error", err),
		)
		return
	}
	observability.ObserveAuditWrite(false)
}

func (a *Archiver) write(ctx context.Context, rec Record) error {
	key, err := BuildKey(rec.SessionID, rec.FinishedAt, rec.TurnIndex)
	if err != nil {
		return err
	}
	data, err := EncodeParquet([]Record{rec})
	if err != nil {
		return err
	}
	_, err = a.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{ContentType: parquetContentType})
	return err
}
