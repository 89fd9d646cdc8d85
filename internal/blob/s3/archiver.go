package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/openintents/solverd/internal/domain"
)

// TerminalIntentLister provides the archiver's read access to the intent
// store. Satisfied by postgres.IntentStore.
type TerminalIntentLister interface {
	ListTerminalBefore(ctx context.Context, before time.Time) ([]domain.Intent, error)
}

// Archiver exports terminal intent records to object storage as JSONL
// snapshots. Deleting archived rows from the primary store is deliberately
// left as a separate, manual step after the export is verified.
type Archiver struct {
	writer  domain.BlobWriter
	intents TerminalIntentLister
	logger  *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(writer domain.BlobWriter, intents TerminalIntentLister, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:  writer,
		intents: intents,
		logger:  logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveTerminal exports every intent that reached a terminal status before
// the cutoff and returns the number of exported records.
func (a *Archiver) ArchiveTerminal(ctx context.Context, before time.Time) (int, error) {
	intents, err := a.intents.ListTerminalBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query: %w", err)
	}
	if len(intents) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, in := range intents {
		if err := enc.Encode(in); err != nil {
			return 0, fmt.Errorf("s3blob: archive marshal order %s: %w", in.OrderID, err)
		}
	}

	path := fmt.Sprintf("archive/intents/%s.jsonl", before.UTC().Format("20060102T150405"))
	if err := a.writer.Put(ctx, path, &buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive upload: %w", err)
	}

	a.logger.Info("terminal intents archived",
		slog.String("path", path),
		slog.Int("count", len(intents)),
	)
	return len(intents), nil
}

// Run archives on the given interval until the context is cancelled.
func (a *Archiver) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.ArchiveTerminal(ctx, time.Now()); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}
