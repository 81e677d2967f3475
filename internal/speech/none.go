package speech

import (
	"context"
	"fmt"

	appErr "github.com/xxxsen/voicerag/internal/pkg/errors"
)

type noneSynthesizer struct{}

func init() {
	Register("none", func(lang string, args interface{}) (Synthesizer, error) {
		return noneSynthesizer{}, nil
	})
}

func (noneSynthesizer) Name() string {
	return "none"
}

func (noneSynthesizer) Synthesize(ctx context.Context, text string) (*Audio, error) {
	return nil, fmt.Errorf("%w: speech disabled", appErr.ErrSynthesis)
}
