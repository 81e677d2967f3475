package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode"

	appErr "github.com/xxxsen/voicerag/internal/pkg/errors"
)

const (
	defaultGoogleTTSURL = "https://translate.google.com/translate_tts"
	googleMaxRunes      = 100
)

type googleConfig struct {
	BaseURL string `json:"base_url"`
}

// googleSynthesizer uses the public translate TTS endpoint. It accepts at
// most googleMaxRunes per request so longer replies are fetched in pieces
// and the MP3 frames concatenated.
type googleSynthesizer struct {
	baseURL string
	lang    string
	client  *http.Client
}

func init() {
	Register("google", createGoogleSynthesizer)
}

func createGoogleSynthesizer(lang string, args interface{}) (Synthesizer, error) {
	cfg := &googleConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultGoogleTTSURL
	}
	if lang == "" {
		lang = "en"
	}
	return &googleSynthesizer{baseURL: baseURL, lang: lang, client: &http.Client{}}, nil
}

func (g *googleSynthesizer) Name() string {
	return "google"
}

func (g *googleSynthesizer) Synthesize(ctx context.Context, text string) (*Audio, error) {
	parts := splitText(text, googleMaxRunes)
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: no text to speak", appErr.ErrSynthesis)
	}
	var buf bytes.Buffer
	for i, part := range parts {
		if err := g.fetch(ctx, part, i, len(parts), &buf); err != nil {
			return nil, err
		}
	}
	return &Audio{Data: buf.Bytes(), ContentType: "audio/mpeg", Ext: ".mp3"}, nil
}

func (g *googleSynthesizer) fetch(ctx context.Context, part string, idx, total int, w io.Writer) error {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("tl", g.lang)
	q.Set("q", part)
	q.Set("total", strconv.Itoa(total))
	q.Set("idx", strconv.Itoa(idx))
	q.Set("textlen", strconv.Itoa(len([]rune(part))))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("%w: %w", appErr.ErrSynthesis, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: google tts request: %w", appErr.ErrSynthesis, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: google tts failed: %s", appErr.ErrSynthesis, resp.Status)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("%w: read google tts body: %w", appErr.ErrSynthesis, err)
	}
	return nil
}

// splitText breaks text into pieces of at most limit runes, cutting on
// whitespace where it can and hard-splitting words that are longer.
func splitText(text string, limit int) []string {
	var out []string
	var cur []rune
	flush := func() {
		if s := strings.TrimSpace(string(cur)); s != "" {
			out = append(out, s)
		}
		cur = cur[:0]
	}
	for _, word := range strings.FieldsFunc(text, unicode.IsSpace) {
		w := []rune(word)
		for len(w) > limit {
			flush()
			out = append(out, string(w[:limit]))
			w = w[limit:]
		}
		need := len(w)
		if len(cur) > 0 {
			need++
		}
		if len(cur)+need > limit {
			flush()
		}
		if len(cur) > 0 {
			cur = append(cur, ' ')
		}
		cur = append(cur, w...)
	}
	flush()
	return out
}
