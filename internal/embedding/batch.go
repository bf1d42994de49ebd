package embedding

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of in-flight embedding requests used by
// EmbedAll when the caller passes a non-positive value.
const DefaultConcurrency = 4

// ProgressReporter receives progress updates while a batch is embedded.
type ProgressReporter interface {
	// OnProgress is called with the number of completed texts.
	OnProgress(current, total int)
}

// ProgressFunc is a function adapter for ProgressReporter.
type ProgressFunc func(current, total int)

// OnProgress implements ProgressReporter.
func (f ProgressFunc) OnProgress(current, total int) {
	f(current, total)
}

// EmbedAll embeds every text with at most concurrency requests in flight.
// The returned vectors are in input order. The first failure cancels the
// remaining requests and is returned with the failing text's position.
func EmbedAll(ctx context.Context, p Provider, texts []string, concurrency int, progress ProgressReporter) ([][]float32, error) {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	vectors := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var mu sync.Mutex
	done := 0

	for i, text := range texts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			emb, err := p.Embed(gctx, text)
			if err != nil {
				return fmt.Errorf("embedding text %d of %d: %w", i+1, len(texts), err)
			}
			vectors[i] = emb.Vector

			if progress != nil {
				mu.Lock()
				done++
				progress.OnProgress(done, len(texts))
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}
