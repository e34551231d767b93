package retention

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/salessupport/salesagent/pkg/models"
)

// LocalFileArchiver writes expired conversations as JSONL files.
//
// Directory structure:
//
//	{basePath}/{conversation}/2026-02-20T15-04-05Z.jsonl[.gz]
//
// Conversation ids are path-escaped so Teams ids such as "19:abc@thread"
// stay one directory.
type LocalFileArchiver struct {
	basePath string
	compress bool
	now      func() time.Time
}

// NewLocalFileArchiver creates a file-based archiver. If basePath is empty,
// it defaults to "~/.salesagent/archive".
func NewLocalFileArchiver(basePath string, compress bool) *LocalFileArchiver {
	if basePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			basePath = filepath.Join(os.TempDir(), "salesagent", "archive")
		} else {
			basePath = filepath.Join(home, ".salesagent", "archive")
		}
	}
	return &LocalFileArchiver{basePath: basePath, compress: compress, now: time.Now}
}

func (a *LocalFileArchiver) Kind() string { return "local" }

func (a *LocalFileArchiver) Archive(_ context.Context, conversationID string, entries []models.TranscriptEntry) (uri string, err error) {
	dir := filepath.Join(a.basePath, url.PathEscape(conversationID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	filename := a.now().UTC().Format("2006-01-02T15-04-05Z") + ".jsonl"
	if a.compress {
		filename += ".gz"
	}
	fpath := filepath.Join(dir, filename)

	f, err := os.Create(fpath)
	if err != nil {
		return "", fmt.Errorf("create archive file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close archive file: %w", cerr)
		}
	}()

	var w io.Writer = f
	if a.compress {
		gw := gzip.NewWriter(f)
		defer func() {
			if cerr := gw.Close(); err == nil && cerr != nil {
				err = fmt.Errorf("flush archive: %w", cerr)
			}
		}()
		w = gw
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return "", fmt.Errorf("encode transcript entry %s: %w", e.ID, err)
		}
	}

	log.Debug().
		Str("path", fpath).
		Int("count", len(entries)).
		Str("conversation", conversationID).
		Msg("Archived transcript to local file")

	return fpath, nil
}

// HealthCheck verifies the archive directory is writable.
func (a *LocalFileArchiver) HealthCheck(_ context.Context) error {
	if err := os.MkdirAll(a.basePath, 0o755); err != nil {
		return fmt.Errorf("archive path not writable: %w", err)
	}
	testFile := filepath.Join(a.basePath, ".healthcheck")
	if err := os.WriteFile(testFile, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("archive path not writable: %w", err)
	}
	_ = os.Remove(testFile)
	return nil
}
