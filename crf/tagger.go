package crf

import (
	"context"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Li-dongyang/crfgo/dataset"
)

// Tagger decodes batches of sentences on a bounded goroutine pool. Each
// sentence is an independent decode; nothing is shared between them except
// the read-only weight store.
type Tagger struct {
	model *LinearCRF
	pool  *ants.Pool
}

// Stats summarizes a TagAll run.
type Stats struct {
	Decoded int64
	Failed  int64
	// Score is the sum of best path scores over decoded sentences.
	Score float64
}

// NewTagger starts a pool of size workers.
func NewTagger(model *LinearCRF, size int) (*Tagger, error) {
	if model == nil {
		return nil, errors.New("crf: nil model")
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, errors.Wrap(err, "create decode pool")
	}
	return &Tagger{model: model, pool: pool}, nil
}

// Release stops the pool. The tagger must not be used afterwards.
func (tg *Tagger) Release() {
	tg.pool.Release()
}

// TagAll writes predictions into every sentence. Failures do not stop the
// batch; they are combined into the returned error. Once ctx is done no new
// sentences are submitted and ctx.Err() is part of the result.
func (tg *Tagger) TagAll(ctx context.Context, sentences []dataset.Sentence) (Stats, error) {
	var wg sync.WaitGroup
	var ctxErr error
	decoded, failed := atomic.NewInt64(0), atomic.NewInt64(0)
	errs := make([]error, len(sentences))
	scores := make([]float64, len(sentences))

	for i := range sentences {
		if ctxErr = ctx.Err(); ctxErr != nil {
			break
		}
		i := i
		wg.Add(1)
		err := tg.pool.Submit(func() {
			defer wg.Done()
			res, err := tg.model.Infer(sentences[i])
			if err != nil {
				errs[i] = errors.Wrapf(err, "sentence %d", i)
				failed.Inc()
				return
			}
			scores[i] = res.Score
			decoded.Inc()
		})
		if err != nil {
			wg.Done()
			errs[i] = errors.Wrapf(err, "submit sentence %d", i)
			failed.Inc()
		}
	}
	wg.Wait()

	stats := Stats{Decoded: decoded.Load(), Failed: failed.Load()}
	for _, s := range scores {
		stats.Score += s
	}
	err := multierr.Append(multierr.Combine(errs...), ctxErr)

	tg.model.logger.Info("tagged batch",
		zap.Int("sentences", len(sentences)),
		zap.Int64("decoded", stats.Decoded),
		zap.Int64("failed", stats.Failed))
	return stats, err
}

// Accuracy is token-level agreement between gold and predicted labels.
type Accuracy struct {
	Correct int
	Total   int
}

// Value returns Correct/Total, or 0 for an empty evaluation.
func (acc Accuracy) Value() float64 {
	if acc.Total == 0 {
		return 0
	}
	return float64(acc.Correct) / float64(acc.Total)
}

// Evaluate counts tokens that carry both a gold and a predicted label.
func Evaluate(sentences []dataset.Sentence) Accuracy {
	var acc Accuracy
	for _, sentence := range sentences {
		for _, pair := range sentence {
			if pair.Tag == dataset.NoLabel || pair.Pred == dataset.NoLabel {
				continue
			}
			acc.Total++
			if pair.Tag == pair.Pred {
				acc.Correct++
			}
		}
	}
	return acc
}
