package job

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/voicerag/internal/config"
	"github.com/xxxsen/voicerag/internal/filestore"
)

func TestSpeechCleanupJob_RemovesExpired(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	files, err := filestore.New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{"dir": dir}})
	require.NoError(t, err)
	for _, key := range []string{"speech_old.mp3", "speech_new.mp3", "keep_old.bin"} {
		require.NoError(t, files.Save(ctx, key, bytes.NewReader([]byte("x")), 1))
	}
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "speech_old.mp3"), old, old))
	require.NoError(t, os.Chtimes(filepath.Join(dir, "keep_old.bin"), old, old))

	job := NewSpeechCleanupJob(files, "speech_", 24*time.Hour)
	require.NoError(t, job.Run(ctx))

	left, err := files.List(ctx, "")
	require.NoError(t, err)
	keys := make([]string, 0, len(left))
	for _, item := range left {
		keys = append(keys, item.Key)
	}
	require.Equal(t, []string{"keep_old.bin", "speech_new.mp3"}, keys)
}

func TestSpeechCleanupJob_DisabledWithoutRetention(t *testing.T) {
	job := NewSpeechCleanupJob(nil, "speech_", 0)
	require.NoError(t, job.Run(context.Background()))
}
