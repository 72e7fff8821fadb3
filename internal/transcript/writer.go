// Package transcript persists a conversation's ingested events as JSON
// lines, alongside a cursor file holding the highest event id seen. A file
// lock enforces one writer per conversation across processes.
package transcript

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/harunnryd/kaiwa/internal/config"
	"github.com/harunnryd/kaiwa/internal/errors"
	"github.com/harunnryd/kaiwa/internal/event"

	"github.com/gofrs/flock"
	"github.com/natefinch/atomic"
)

func eventsPath(dir, conversationID string) string {
	return filepath.Join(dir, conversationID+".jsonl")
}

func cursorPath(dir, conversationID string) string {
	return filepath.Join(dir, conversationID+".cursor")
}

func lockPath(dir, conversationID string) string {
	return filepath.Join(dir, conversationID+".lock")
}

func validateID(conversationID string) error {
	if strings.TrimSpace(conversationID) == "" {
		return errors.InvalidInput("conversation id is required")
	}
	if strings.ContainsAny(conversationID, `/\`) {
		return errors.InvalidInput(fmt.Sprintf("conversation id %q must not contain path separators", conversationID))
	}
	return nil
}

// Writer appends events for one conversation. It is driven by the session
// store's sink hook, which serializes calls; Writer itself is not safe for
// concurrent use.
type Writer struct {
	dir            string
	conversationID string
	lock           *flock.Flock
	rotateMaxBytes int64
	lastID         int64
}

// NewWriter acquires the conversation's transcript lock and prepares the
// directory. It fails when another process already writes this conversation.
func NewWriter(cfg *config.Config, conversationID string) (*Writer, error) {
	if err := validateID(conversationID); err != nil {
		return nil, err
	}
	dir := strings.TrimSpace(cfg.Transcript.Dir)
	if dir == "" {
		return nil, errors.InvalidInput("transcript.dir is empty")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}

	lockTimeout, err := config.DurationOrDefault(cfg.Transcript.LockTimeout, config.DefaultTranscriptLockTimeout)
	if err != nil {
		return nil, fmt.Errorf("transcript.lock_timeout: %w", err)
	}
	lockRetry, err := config.DurationOrDefault(cfg.Transcript.LockRetry, config.DefaultTranscriptLockRetry)
	if err != nil {
		return nil, fmt.Errorf("transcript.lock_retry: %w", err)
	}
	rotateMaxBytes := cfg.Transcript.RotateMaxBytes
	if rotateMaxBytes <= 0 {
		rotateMaxBytes = config.DefaultTranscriptRotateMaxBytes
	}

	lock := flock.New(lockPath(dir, conversationID))
	deadline := time.Now().Add(lockTimeout)
	for {
		locked, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("acquire transcript lock: %w", err)
		}
		if locked {
			break
		}
		if time.Now().After(deadline) {
			return nil, errors.Internal(fmt.Sprintf(
				"transcript for %s is locked by another instance (timeout after %v)", conversationID, lockTimeout))
		}
		time.Sleep(lockRetry)
	}
	slog.Info("Transcript lock acquired", "conversation", conversationID, "dir", dir)

	w := &Writer{
		dir:            dir,
		conversationID: conversationID,
		lock:           lock,
		rotateMaxBytes: rotateMaxBytes,
	}
	if cursor, err := Cursor(dir, conversationID); err == nil {
		w.lastID = cursor
	}
	return w, nil
}

// Append writes one raw event line and advances the cursor file when the
// event id is a new high-water mark.
func (w *Writer) Append(evt *event.Event, raw []byte) error {
	path := eventsPath(w.dir, w.conversationID)
	if err := w.rotateIfNeeded(path); err != nil {
		slog.Warn("Transcript rotation failed", "conversation", w.conversationID, "error", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(raw); err != nil {
		return err
	}
	if _, err := f.WriteString("\n"); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}

	if evt.ID > w.lastID {
		w.lastID = evt.ID
		cursor := strconv.FormatInt(evt.ID, 10)
		if err := atomic.WriteFile(cursorPath(w.dir, w.conversationID), strings.NewReader(cursor)); err != nil {
			return fmt.Errorf("write cursor: %w", err)
		}
	}
	return nil
}

// Close releases the transcript lock.
func (w *Writer) Close() error {
	if w.lock == nil {
		return nil
	}
	err := w.lock.Unlock()
	w.lock = nil
	if err != nil {
		slog.Warn("Transcript lock release failed", "conversation", w.conversationID, "error", err)
	}
	return err
}

func (w *Writer) rotateIfNeeded(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() < w.rotateMaxBytes {
		return nil
	}

	backup := fmt.Sprintf("%s.%s.bak", path, time.Now().Format("20060102150405"))
	slog.Info("Rotating transcript", "conversation", w.conversationID, "size", info.Size(), "backup", backup)
	return os.Rename(path, backup)
}

// Tail returns the last n raw event lines, oldest first; n <= 0 returns all.
func Tail(dir, conversationID string, n int) ([][]byte, error) {
	if err := validateID(conversationID); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(eventsPath(dir, conversationID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound(fmt.Sprintf("no transcript for %s", conversationID))
		}
		return nil, err
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	lines := bytes.Split(trimmed, []byte("\n"))
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// Cursor returns the persisted high-water event id, 0 when none exists.
func Cursor(dir, conversationID string) (int64, error) {
	data, err := os.ReadFile(cursorPath(dir, conversationID))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	id, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, errors.Decode(fmt.Sprintf("cursor for %s is corrupt", conversationID))
	}
	return id, nil
}

// Info describes one stored conversation transcript.
type Info struct {
	ConversationID string
	Events         int
	SizeBytes      int64
	UpdatedAt      time.Time
}

// List scans dir for conversation transcripts, sorted by conversation id.
// Rotated backups are not listed.
func List(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var infos []Info
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		conversationID := strings.TrimSuffix(name, ".jsonl")
		events := 0
		if data, err := os.ReadFile(filepath.Join(dir, name)); err == nil {
			events = bytes.Count(data, []byte("\n"))
			if len(data) > 0 && data[len(data)-1] != '\n' {
				events++
			}
		}
		infos = append(infos, Info{
			ConversationID: conversationID,
			Events:         events,
			SizeBytes:      fi.Size(),
			UpdatedAt:      fi.ModTime(),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ConversationID < infos[j].ConversationID
	})
	return infos, nil
}

// Remove deletes a conversation's transcript, cursor and rotated backups.
// It refuses when a live writer holds the conversation's lock.
func Remove(dir, conversationID string) error {
	if err := validateID(conversationID); err != nil {
		return err
	}

	lock := flock.New(lockPath(dir, conversationID))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire transcript lock: %w", err)
	}
	if !locked {
		return errors.Internal(fmt.Sprintf("transcript for %s is in use", conversationID))
	}
	defer lock.Unlock()

	events := eventsPath(dir, conversationID)
	targets := []string{events, cursorPath(dir, conversationID)}
	if backups, err := filepath.Glob(events + ".*.bak"); err == nil {
		targets = append(targets, backups...)
	}
	for _, target := range targets {
		if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
