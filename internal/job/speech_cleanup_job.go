package job

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/voicerag/internal/filestore"
)

// SpeechCleanupJob removes synthesized audio older than the retention window.
type SpeechCleanupJob struct {
	files     filestore.Store
	prefix    string
	retention time.Duration
	now       func() time.Time
}

func NewSpeechCleanupJob(files filestore.Store, prefix string, retention time.Duration) *SpeechCleanupJob {
	return &SpeechCleanupJob{files: files, prefix: prefix, retention: retention, now: time.Now}
}

func (j *SpeechCleanupJob) Name() string {
	return "speech_cleanup"
}

func (j *SpeechCleanupJob) Run(ctx context.Context) error {
	if j.files == nil || j.retention <= 0 {
		return nil
	}
	items, err := j.files.List(ctx, j.prefix)
	if err != nil {
		return err
	}
	cutoff := j.now().Add(-j.retention)
	var errs []error
	removed := 0
	for _, item := range items {
		if !strings.HasPrefix(item.Key, j.prefix) || !item.Mtime.Before(cutoff) {
			continue
		}
		if err := j.files.Delete(ctx, item.Key); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		logutil.GetLogger(ctx).Info("speech files removed", zap.Int("count", removed))
	}
	return errors.Join(errs...)
}
