package sentiment

import (
	"context"
	"strings"
)

// Prediction is one raw model output. Label carries whatever vocabulary the
// model speaks (POS/NEG/NEU, POSITIVE/NEGATIVE, ...); Classify maps it onto
// the public label set.
type Prediction struct {
	Label string
	Score float64
}

// Model scores a single piece of text. Implementations must be safe for
// concurrent use; batch classification fans out across goroutines.
type Model interface {
	Predict(ctx context.Context, text string) ([]Prediction, error)
}

// lexiconModel is the built-in scorer: a word-polarity lookup over the token
// stream. It is deliberately simple; the value of the pipeline is in the
// caching, batching and delivery around it, and the Model interface leaves
// room to swap in an inference-backed implementation.
type lexiconModel struct {
	polarity map[string]float64
}

// NewLexiconModel builds the embedded word-polarity model.
func NewLexiconModel() (Model, error) {
	m := &lexiconModel{polarity: make(map[string]float64, len(positiveWords)+len(negativeWords))}
	for _, w := range positiveWords {
		m.polarity[w] = 1
	}
	for _, w := range negativeWords {
		m.polarity[w] = -1
	}
	return m, nil
}

func (m *lexiconModel) Predict(_ context.Context, text string) ([]Prediction, error) {
	var sum, matched float64
	tokens := strings.Fields(strings.ToLower(text))
	for _, tok := range tokens {
		tok = strings.Trim(tok, ".,!?;:'\"()[]")
		if p, ok := m.polarity[tok]; ok {
			sum += p
			matched++
		}
	}
	if matched == 0 {
		return []Prediction{{Label: "NEU", Score: 0.5}}, nil
	}
	mean := sum / matched
	// Confidence grows with both agreement and coverage, capped below 1.
	conf := 0.5 + 0.45*abs(mean)*min(1, matched/float64(len(tokens)))
	switch {
	case mean > 0.2:
		return []Prediction{{Label: "POS", Score: conf}}, nil
	case mean < -0.2:
		return []Prediction{{Label: "NEG", Score: conf}}, nil
	default:
		return []Prediction{{Label: "NEU", Score: conf}}, nil
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

var positiveWords = []string{
	"love", "loved", "great", "good", "awesome", "amazing", "nice", "best",
	"cool", "fun", "funny", "hype", "hyped", "win", "winning", "clutch",
	"insane", "cracked", "goat", "legend", "lets", "lfg", "pog", "poggers",
	"pogchamp", "gg", "ggs", "wp", "sick", "fire", "epic", "beautiful",
	"perfect", "excellent", "happy", "glad", "thanks", "thank", "lol",
	"lmao", "haha", "hahaha", "w", "dub", "banger", "goated", "king",
	"queen", "wholesome", "based",
}

var negativeWords = []string{
	"hate", "hated", "bad", "worst", "awful", "terrible", "trash", "garbage",
	"boring", "bored", "lose", "losing", "lost", "throw", "throwing", "threw",
	"choke", "choked", "cringe", "mad", "angry", "sad", "rip", "rigged",
	"scam", "lag", "laggy", "lame", "mid", "washed", "fraud", "l", "f",
	"oof", "yikes", "bruh", "wtf", "stupid", "dumb", "annoying", "toxic",
	"pathetic", "disgusting", "horrible", "ugly", "fail", "failed", "noob",
}
