package sentiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/streamsense-live/backend/telemetry"
)

// Canonical labels. Every result carries exactly one of these.
const (
	LabelPositive = "positive"
	LabelNeutral  = "neutral"
	LabelNegative = "negative"
)

// ErrModelUnavailable is returned by Classify when the model could not be
// initialized. Once init fails it fails for the process lifetime.
var ErrModelUnavailable = errors.New("sentiment model unavailable")

const (
	defaultCacheCapacity = 1000
	batchChunkSize       = 10
)

// Result is a classified piece of text.
type Result struct {
	Label string  `json:"sentiment"`
	Score float64 `json:"sentimentScore"`
}

func neutral() Result { return Result{Label: LabelNeutral, Score: 0} }

// Classifier wraps a lazily-initialized Model with a bounded result cache.
// Safe for concurrent use.
type Classifier struct {
	loadModel func() (Model, error)
	cache     *textCache

	initOnce sync.Once
	model    Model
	initErr  error
}

// New builds a Classifier around the given model factory. The factory runs at
// most once, on the first classification that needs the model.
func New(loadModel func() (Model, error)) *Classifier {
	return &Classifier{
		loadModel: loadModel,
		cache:     newTextCache(defaultCacheCapacity),
	}
}

func (c *Classifier) init() (Model, error) {
	c.initOnce.Do(func() {
		c.model, c.initErr = c.loadModel()
		if c.initErr != nil {
			slog.Error("sentiment model init failed", slog.Any("err", c.initErr))
		}
	})
	if c.initErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, c.initErr)
	}
	return c.model, nil
}

// Classify returns the sentiment of text. Blank text short-circuits to
// neutral without touching the cache or the model. Model invocation failures
// and malformed outputs also come back neutral with a nil error; the only
// error ever returned is ErrModelUnavailable.
func (c *Classifier) Classify(ctx context.Context, text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return neutral(), nil
	}
	if r, ok := c.cache.get(text); ok {
		return r, nil
	}
	model, err := c.init()
	if err != nil {
		return neutral(), err
	}

	var preds []Prediction
	var predErr error
	telemetry.TimeFunc(telemetry.ClassifyDuration, func() {
		preds, predErr = model.Predict(ctx, text)
	})
	if predErr != nil {
		slog.Debug("sentiment predict failed", slog.Any("err", predErr))
		return neutral(), nil
	}
	r, ok := resultFrom(preds)
	if !ok {
		return neutral(), nil
	}
	c.cache.put(text, r)
	return r, nil
}

// ClassifyBatch classifies texts and returns exactly one result per input,
// index-aligned with texts. Blank entries come back neutral without touching
// the model or cache. Work on the rest proceeds in chunks of ten, concurrent
// within a chunk and sequential across chunks. Individual failures degrade to
// neutral; if the model cannot initialize at all, every entry comes back
// neutral.
func (c *Classifier) ClassifyBatch(ctx context.Context, texts []string) []Result {
	results := make([]Result, len(texts))
	pending := make([]int, 0, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			results[i] = neutral()
			continue
		}
		pending = append(pending, i)
	}
	for start := 0; start < len(pending); start += batchChunkSize {
		end := min(start+batchChunkSize, len(pending))
		var wg sync.WaitGroup
		for _, idx := range pending[start:end] {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				r, err := c.Classify(ctx, texts[idx])
				if err != nil {
					r = neutral()
				}
				results[idx] = r
			}(idx)
		}
		wg.Wait()
	}
	return results
}

// resultFrom validates raw model output and maps its label vocabulary onto
// the canonical set. Anything unexpected is rejected.
func resultFrom(preds []Prediction) (Result, bool) {
	if len(preds) == 0 {
		return Result{}, false
	}
	top := preds[0]
	if math.IsNaN(top.Score) || math.IsInf(top.Score, 0) {
		return Result{}, false
	}
	return Result{Label: mapLabel(top.Label), Score: top.Score}, true
}

func mapLabel(raw string) string {
	switch strings.ToUpper(raw) {
	case "POS", "POSITIVE":
		return LabelPositive
	case "NEG", "NEGATIVE":
		return LabelNegative
	default:
		return LabelNeutral
	}
}
