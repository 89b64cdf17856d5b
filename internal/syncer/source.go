// Package syncer feeds sync batches into per-room timelines, keeping the
// single-logical-writer rule: one room, one timeline, one writer.
package syncer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tOgg1/loom/internal/models"
)

// Source is the transport collaborator: an ordered stream of sync
// batches. Gaps (limited room updates) may appear only at session start.
type Source interface {
	// Next returns the next sync batch, or io.EOF when the stream ends.
	Next(ctx context.Context) (*models.SyncResponse, error)
}

// Fetch error classification for the out-of-band event lookup.
var (
	ErrEventNotFound = errors.New("event not found")
	ErrForbidden     = errors.New("access forbidden")
	ErrNetwork       = errors.New("network failure")
)

// FileSource replays a JSONL file of sync batches, one JSON-encoded
// SyncResponse per line. Used by `loom tail` and by tests.
type FileSource struct {
	file    *os.File
	scanner *bufio.Scanner
}

// OpenFileSource opens a JSONL sync-stream file.
func OpenFileSource(path string) (*FileSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sync stream: %w", err)
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &FileSource{file: file, scanner: scanner}, nil
}

// Next returns the next batch in the file, skipping blank lines.
func (s *FileSource) Next(ctx context.Context) (*models.SyncResponse, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return nil, fmt.Errorf("failed to read sync stream: %w", err)
			}
			return nil, io.EOF
		}
		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		resp, err := models.ParseSyncResponse(line)
		if err != nil {
			return nil, fmt.Errorf("malformed sync batch: %w", err)
		}
		return resp, nil
	}
}

// Close closes the underlying file.
func (s *FileSource) Close() error {
	return s.file.Close()
}
