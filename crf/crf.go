// Package crf scores sentences under a linear-chain CRF whose weights live in
// a fastcache store, and tags them with the Viterbi decoder.
//
// Emission scores come from word-window templates: for every position the
// model instantiates each template into a feature key and sums the weights of
// (key, label) pairs. Transition, start and end scores are label-only
// weights, so the transition table does not depend on the position.
package crf

import (
	"strings"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Li-dongyang/crfgo/config"
	"github.com/Li-dongyang/crfgo/dataset"
	"github.com/Li-dongyang/crfgo/viterbi"
)

// Padding words for template offsets that fall outside the sentence.
const (
	StartWord = "<s>"
	EndWord   = "</s>"
)

type LinearCRF struct {
	Weights   *fastcache.Cache
	Config    *config.Config
	Templates []config.Template

	logger *zap.Logger
}

// Option customizes a LinearCRF.
type Option func(*LinearCRF)

// WithLogger sets the logger used for per-sentence debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(model *LinearCRF) {
		if logger != nil {
			model.logger = logger
		}
	}
}

// NewModel builds a model over weights. A nil weights store is replaced by an
// empty one sized by cfg.CacheBytes.
func NewModel(cfg *config.Config, weights *fastcache.Cache, opts ...Option) (*LinearCRF, error) {
	if cfg == nil {
		return nil, errors.New("crf: nil config")
	}
	if cfg.NumLabels() == 0 {
		return nil, errors.New("crf: config has no labels")
	}
	if weights == nil {
		weights = fastcache.New(cfg.CacheBytes)
	}
	model := &LinearCRF{
		Weights:   weights,
		Config:    cfg,
		Templates: cfg.Templates,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(model)
	}
	return model, nil
}

// OpenModel loads the snapshot at cfg.WeightsPath, or starts empty when
// there is none.
func OpenModel(cfg *config.Config, opts ...Option) (*LinearCRF, error) {
	if cfg == nil {
		return nil, errors.New("crf: nil config")
	}
	var weights *fastcache.Cache
	if cfg.WeightsPath != "" {
		weights = fastcache.LoadFromFileOrNew(cfg.WeightsPath, cfg.CacheBytes)
	}
	return NewModel(cfg, weights, opts...)
}

// SaveModel writes the weight store to path.
func (model *LinearCRF) SaveModel(path string) error {
	if err := model.Weights.SaveToFile(path); err != nil {
		return errors.Wrapf(err, "save weights to %s", path)
	}
	return nil
}

// NumLabels is the size of the label alphabet.
func (model *LinearCRF) NumLabels() int {
	return model.Config.NumLabels()
}

func (model *LinearCRF) SetEmission(feature string, label int, w float64) {
	SetCache(emissionKey(nil, feature, label), w, model.Weights)
}

func (model *LinearCRF) SetTransition(prev, cur int, w float64) {
	SetCache(transitionKey(nil, prev, cur), w, model.Weights)
}

func (model *LinearCRF) SetStart(label int, w float64) {
	SetCache(startKey(nil, label), w, model.Weights)
}

func (model *LinearCRF) SetEnd(label int, w float64) {
	SetCache(endKey(nil, label), w, model.Weights)
}

// Emission returns the weight of feature with label.
func (model *LinearCRF) Emission(feature string, label int) float64 {
	return GetCache(nil, emissionKey(nil, feature, label), model.Weights)
}

// FeatureKeys instantiates every template at position t.
func (model *LinearCRF) FeatureKeys(words []string, t int) []string {
	keys := make([]string, len(model.Templates))
	var sb strings.Builder
	for i, tmpl := range model.Templates {
		sb.Reset()
		sb.WriteString(tmpl.Name)
		sb.WriteByte(':')
		for j, offset := range tmpl.Offsets {
			if j > 0 {
				sb.WriteByte('/')
			}
			sb.WriteString(wordAt(words, t+offset))
		}
		keys[i] = sb.String()
	}
	return keys
}

func wordAt(words []string, idx int) string {
	switch {
	case idx < 0:
		return StartWord
	case idx >= len(words):
		return EndWord
	default:
		return words[idx]
	}
}

// Scores builds the emission, transition, start and end tables for words.
// All tables are freshly allocated and owned by the caller.
func (model *LinearCRF) Scores(words []string) (viterbi.Scores, error) {
	if len(words) == 0 {
		return viterbi.Scores{}, errors.Wrap(viterbi.ErrShapeMismatch, "empty sentence")
	}
	numLabels := model.NumLabels()
	buf := make([]byte, 0, 8)
	var key []byte

	emission := make([][]float64, len(words))
	for t := range words {
		emission[t] = make([]float64, numLabels)
		for _, feature := range model.FeatureKeys(words, t) {
			for j := 0; j < numLabels; j++ {
				key = emissionKey(key, feature, j)
				emission[t][j] += GetCache(buf, key, model.Weights)
			}
		}
	}

	transition := make([][]float64, numLabels)
	start := make([]float64, numLabels)
	end := make([]float64, numLabels)
	for prev := 0; prev < numLabels; prev++ {
		transition[prev] = make([]float64, numLabels)
		for cur := 0; cur < numLabels; cur++ {
			key = transitionKey(key, prev, cur)
			transition[prev][cur] = GetCache(buf, key, model.Weights)
		}
		key = startKey(key, prev)
		start[prev] = GetCache(buf, key, model.Weights)
		key = endKey(key, prev)
		end[prev] = GetCache(buf, key, model.Weights)
	}

	return viterbi.Scores{
		Emission:   emission,
		Transition: transition,
		Start:      start,
		End:        end,
	}, nil
}

// Decode returns the best label sequence for words.
func (model *LinearCRF) Decode(words []string) (viterbi.Result, error) {
	scores, err := model.Scores(words)
	if err != nil {
		return viterbi.Result{}, err
	}
	return scores.Decode()
}

// Infer decodes sentence and writes the predicted labels back into it.
func (model *LinearCRF) Infer(sentence dataset.Sentence) (viterbi.Result, error) {
	res, err := model.Decode(sentence.Words())
	if err != nil {
		return viterbi.Result{}, err
	}
	if err := sentence.SetPredictions(res.Sequence); err != nil {
		return viterbi.Result{}, err
	}
	model.logger.Debug("decoded sentence",
		zap.Int("tokens", len(sentence)),
		zap.Float64("score", res.Score))
	return res, nil
}
