package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/harunnryd/kaiwa/internal/config"
	"github.com/harunnryd/kaiwa/internal/errors"
	"github.com/harunnryd/kaiwa/internal/event"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTranscriptConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Transcript.Enabled = true
	cfg.Transcript.Dir = t.TempDir()
	cfg.Transcript.RotateMaxBytes = 1 << 20
	cfg.Transcript.LockTimeout = "100ms"
	cfg.Transcript.LockRetry = "10ms"
	return cfg
}

func appendLine(t *testing.T, w *Writer, id int64) []byte {
	t.Helper()
	raw := []byte(fmt.Sprintf(`{"id":%d,"source":"agent","message":"event %d"}`, id, id))
	require.NoError(t, w.Append(&event.Event{ID: id}, raw))
	return raw
}

func TestWriterAppendsLinesAndAdvancesCursor(t *testing.T) {
	cfg := testTranscriptConfig(t)

	w, err := NewWriter(cfg, "conv-1")
	require.NoError(t, err)
	defer w.Close()

	raw1 := appendLine(t, w, 1)
	raw2 := appendLine(t, w, 2)

	lines, err := Tail(cfg.Transcript.Dir, "conv-1", 0)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, raw1, lines[0])
	assert.Equal(t, raw2, lines[1])

	cursor, err := Cursor(cfg.Transcript.Dir, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), cursor)
}

func TestWriterCursorNeverRegresses(t *testing.T) {
	cfg := testTranscriptConfig(t)

	w, err := NewWriter(cfg, "conv-1")
	require.NoError(t, err)
	defer w.Close()

	appendLine(t, w, 5)
	appendLine(t, w, 3)

	cursor, err := Cursor(cfg.Transcript.Dir, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), cursor, "older event must not move the cursor back")

	lines, err := Tail(cfg.Transcript.Dir, "conv-1", 0)
	require.NoError(t, err)
	assert.Len(t, lines, 2, "older event is still logged")
}

func TestWriterResumesCursorAcrossReopen(t *testing.T) {
	cfg := testTranscriptConfig(t)

	w, err := NewWriter(cfg, "conv-1")
	require.NoError(t, err)
	appendLine(t, w, 7)
	require.NoError(t, w.Close())

	w2, err := NewWriter(cfg, "conv-1")
	require.NoError(t, err)
	defer w2.Close()
	appendLine(t, w2, 4)

	cursor, err := Cursor(cfg.Transcript.Dir, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), cursor)
}

func TestWriterRotatesWhenFileIsFull(t *testing.T) {
	cfg := testTranscriptConfig(t)
	cfg.Transcript.RotateMaxBytes = 1

	w, err := NewWriter(cfg, "conv-1")
	require.NoError(t, err)
	defer w.Close()

	appendLine(t, w, 1)
	raw2 := appendLine(t, w, 2)

	backups, err := filepath.Glob(filepath.Join(cfg.Transcript.Dir, "conv-1.jsonl.*.bak"))
	require.NoError(t, err)
	require.Len(t, backups, 1)

	lines, err := Tail(cfg.Transcript.Dir, "conv-1", 0)
	require.NoError(t, err)
	require.Len(t, lines, 1, "current file holds only post-rotation events")
	assert.Equal(t, raw2, lines[0])

	cursor, err := Cursor(cfg.Transcript.Dir, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), cursor, "rotation must not lose the cursor")
}

func TestWriterLockExcludesSecondWriter(t *testing.T) {
	cfg := testTranscriptConfig(t)
	cfg.Transcript.LockTimeout = "50ms"

	w, err := NewWriter(cfg, "conv-1")
	require.NoError(t, err)

	_, err = NewWriter(cfg, "conv-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInternal)

	other, err := NewWriter(cfg, "conv-2")
	require.NoError(t, err, "locks are per conversation")
	require.NoError(t, other.Close())

	require.NoError(t, w.Close())

	w2, err := NewWriter(cfg, "conv-1")
	require.NoError(t, err, "lock is free after close")
	require.NoError(t, w2.Close())
}

func TestWriterRejectsUnsafeConversationIDs(t *testing.T) {
	cfg := testTranscriptConfig(t)

	for _, id := range []string{"", "   ", "a/b", `a\b`, "../escape"} {
		_, err := NewWriter(cfg, id)
		assert.ErrorIs(t, err, errors.ErrInvalidInput, "id %q", id)
	}
}

func TestTailLimitsToNewestLines(t *testing.T) {
	cfg := testTranscriptConfig(t)

	_, err := Tail(cfg.Transcript.Dir, "missing", 0)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	w, err := NewWriter(cfg, "conv-1")
	require.NoError(t, err)
	defer w.Close()
	appendLine(t, w, 1)
	raw2 := appendLine(t, w, 2)
	raw3 := appendLine(t, w, 3)

	lines, err := Tail(cfg.Transcript.Dir, "conv-1", 2)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, raw2, lines[0])
	assert.Equal(t, raw3, lines[1])
}

func TestCursorMissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()

	cursor, err := Cursor(dir, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), cursor)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "conv-1.cursor"), []byte("not a number"), 0644))
	_, err = Cursor(dir, "conv-1")
	assert.ErrorIs(t, err, errors.ErrDecode)
}

func TestListCountsConversations(t *testing.T) {
	cfg := testTranscriptConfig(t)

	infos, err := List(cfg.Transcript.Dir)
	require.NoError(t, err)
	assert.Empty(t, infos)

	wb, err := NewWriter(cfg, "conv-b")
	require.NoError(t, err)
	appendLine(t, wb, 1)
	require.NoError(t, wb.Close())

	wa, err := NewWriter(cfg, "conv-a")
	require.NoError(t, err)
	appendLine(t, wa, 1)
	appendLine(t, wa, 2)
	require.NoError(t, wa.Close())

	// Rotated backups must not show up as conversations.
	require.NoError(t, os.WriteFile(
		filepath.Join(cfg.Transcript.Dir, "conv-a.jsonl.20260101000000.bak"), []byte("{}\n"), 0644))

	infos, err = List(cfg.Transcript.Dir)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "conv-a", infos[0].ConversationID)
	assert.Equal(t, 2, infos[0].Events)
	assert.Equal(t, "conv-b", infos[1].ConversationID)
	assert.Equal(t, 1, infos[1].Events)
	assert.Positive(t, infos[0].SizeBytes)
	assert.False(t, infos[0].UpdatedAt.IsZero())
}

func TestListMissingDirIsEmpty(t *testing.T) {
	infos, err := List(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Nil(t, infos)
}

func TestRemoveDeletesTranscriptArtifacts(t *testing.T) {
	cfg := testTranscriptConfig(t)
	cfg.Transcript.RotateMaxBytes = 1

	w, err := NewWriter(cfg, "conv-1")
	require.NoError(t, err)
	appendLine(t, w, 1)
	appendLine(t, w, 2)

	err = Remove(cfg.Transcript.Dir, "conv-1")
	require.Error(t, err, "refuses while a writer holds the lock")
	assert.ErrorIs(t, err, errors.ErrInternal)

	require.NoError(t, w.Close())
	require.NoError(t, Remove(cfg.Transcript.Dir, "conv-1"))

	leftovers, err := filepath.Glob(filepath.Join(cfg.Transcript.Dir, "conv-1.jsonl*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
	cursor, err := Cursor(cfg.Transcript.Dir, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), cursor)

	require.NoError(t, Remove(cfg.Transcript.Dir, "conv-1"), "removing a missing transcript is a no-op")
}
