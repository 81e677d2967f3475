package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/xxxsen/voicerag/internal/pkg/errors"
)

const defaultTemperature = 0.5

// Agent describes one persona for a chat-completion call.
type Agent struct {
	Name         string
	Instructions string
	Model        string
}

type RunResult struct {
	FinalOutput string
}

type RunnerOption func(*Runner)

func WithTemperature(t float64) RunnerOption {
	return func(r *Runner) {
		r.temperature = t
	}
}

// WithTimeout bounds each call. Zero leaves the call unbounded.
func WithTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.timeout = d
	}
}

// Runner sends an agent's instructions plus one user input to the hosted
// model and returns the first choice untouched.
type Runner struct {
	provider    IChatProvider
	temperature float64
	timeout     time.Duration
}

func NewRunner(provider IChatProvider, opts ...RunnerOption) *Runner {
	r := &Runner{provider: provider, temperature: defaultTemperature}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) Run(ctx context.Context, agent Agent, input string) (*RunResult, error) {
	if r == nil || r.provider == nil {
		return nil, fmt.Errorf("llm provider not configured: %w", appErr.ErrConfiguration)
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	logger := logutil.GetLogger(ctx).With(
		zap.String("agent", agent.Name),
		zap.String("provider", r.provider.Name()),
		zap.String("model", agent.Model),
	)
	start := time.Now()
	out, err := r.provider.Chat(ctx, ChatRequest{
		Model: agent.Model,
		Messages: []ChatMessage{
			{Role: "system", Content: agent.Instructions},
			{Role: "user", Content: input},
		},
		Temperature: r.temperature,
	})
	if err != nil {
		if !errors.Is(err, appErr.ErrConfiguration) && !errors.Is(err, appErr.ErrExternalService) {
			err = fmt.Errorf("%w: %w", appErr.ErrExternalService, err)
		}
		logger.Error("agent run failed", zap.Error(err), zap.Duration("cost", time.Since(start)))
		return nil, err
	}
	logger.Debug("agent run finished", zap.Int("output_len", len(out)), zap.Duration("cost", time.Since(start)))
	return &RunResult{FinalOutput: out}, nil
}
