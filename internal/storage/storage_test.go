package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/societynet/societychat/internal/messages"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

func newTestStorage(t *testing.T, maxSize int64) *Storage {
	t.Helper()
	s, err := New(t.TempDir(), "/files", maxSize, zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, messages.KindImage, KindOf("image/png"))
	assert.Equal(t, messages.KindImage, KindOf("image/jpeg"))
	assert.Equal(t, messages.KindVideo, KindOf("video/mp4"))
	assert.Equal(t, messages.KindAudio, KindOf("audio/mpeg"))
	assert.Equal(t, messages.KindFile, KindOf("application/pdf"))
	assert.Equal(t, messages.KindFile, KindOf("text/plain; charset=utf-8"))
}

func TestStoreAndOpenRoundTrip(t *testing.T) {
	s := newTestStorage(t, 1<<20)

	content := []byte("hello attachment")
	info, err := s.Store(context.Background(), bytes.NewReader(content), "note.txt")
	require.NoError(t, err)

	assert.Equal(t, "note.txt", info.FileName)
	assert.Equal(t, messages.KindFile, info.Kind)
	assert.Equal(t, int64(len(content)), info.Size)
	assert.True(t, strings.HasPrefix(info.URL, "/files/"))
	assert.True(t, strings.HasSuffix(info.URL, ".txt"))

	rc, err := s.Open(context.Background(), strings.TrimPrefix(info.URL, "/files/"))
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestStoreSniffsImageKind(t *testing.T) {
	s := newTestStorage(t, 1<<20)

	info, err := s.Store(context.Background(), bytes.NewReader(pngHeader), "pic.png")
	require.NoError(t, err)
	assert.Equal(t, messages.KindImage, info.Kind)
}

func TestStoreRejectsOversizedFile(t *testing.T) {
	s := newTestStorage(t, 8)

	_, err := s.Store(context.Background(), bytes.NewReader(make([]byte, 9)), "big.bin")
	assert.Error(t, err)
}

func TestStoreRejectsEmptyFile(t *testing.T) {
	s := newTestStorage(t, 1<<20)

	_, err := s.Store(context.Background(), bytes.NewReader(nil), "empty.bin")
	assert.Error(t, err)
}

func TestOpenRefusesPathTraversal(t *testing.T) {
	s := newTestStorage(t, 1<<20)

	_, err := s.Open(context.Background(), "../../../etc/passwd")
	assert.Error(t, err)
}
