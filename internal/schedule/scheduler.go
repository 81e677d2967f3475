package schedule

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// Job is a unit of background maintenance run on a cron spec.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type CronScheduler struct {
	cron    *cron.Cron
	entries map[string]cron.EntryID
	ctx     context.Context
}

func NewCronScheduler() *CronScheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &CronScheduler{
		cron:    cron.New(cron.WithParser(parser)),
		entries: make(map[string]cron.EntryID),
		ctx:     context.Background(),
	}
}

func (c *CronScheduler) AddJob(job Job, spec string) error {
	name := job.Name()
	if _, ok := c.entries[name]; ok {
		return fmt.Errorf("job %s already scheduled", name)
	}
	entryID, err := c.cron.AddFunc(spec, c.guard(job))
	if err != nil {
		return fmt.Errorf("schedule job %s: %w", name, err)
	}
	c.entries[name] = entryID
	logutil.GetLogger(c.ctx).Info("job scheduled", zap.String("job", name), zap.String("spec", spec))
	return nil
}

// Start runs the cron loop; jobs receive ctx.
func (c *CronScheduler) Start(ctx context.Context) {
	c.ctx = ctx
	c.cron.Start()
}

// Stop waits for running jobs to return.
func (c *CronScheduler) Stop() {
	<-c.cron.Stop().Done()
}

// guard drops a tick while the previous run of the same job is still busy.
func (c *CronScheduler) guard(job Job) func() {
	var running atomic.Bool
	return func() {
		if !running.CompareAndSwap(false, true) {
			logutil.GetLogger(c.ctx).Info("job skipped: still running", zap.String("job", job.Name()))
			return
		}
		defer running.Store(false)
		runJob(c.ctx, job)
	}
}

func runJob(ctx context.Context, job Job) {
	logger := logutil.GetLogger(ctx).With(zap.String("job", job.Name()))
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		logger.Error("job failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return
	}
	logger.Debug("job finished", zap.Duration("duration", time.Since(start)))
}
