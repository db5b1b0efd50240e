package audio

import (
	"context"
	"sync"

	"soundscape/logger"
)

// Preheater warms a loader (normally a Cache) so the first export or preview
// doesn't pay decode latency for every track at once.
type Preheater struct {
	loader  Loader
	workers int
}

// NewPreheater creates a preheater with a bounded decode pool.
func NewPreheater(loader Loader, workers int) *Preheater {
	if workers <= 0 {
		workers = 4
	}
	return &Preheater{loader: loader, workers: workers}
}

// Warm loads every object path, at most `workers` at a time, and reports how
// many loaded and failed. Failures are logged and skipped; a missing asset
// must not block the rest of the library.
func (p *Preheater) Warm(ctx context.Context, objectPaths []string) (loaded, failed int) {
	sem := make(chan struct{}, p.workers)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, path := range objectPaths {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(objectPath string) {
			defer wg.Done()
			defer func() { <-sem }()

			_, err := p.loader.Load(ctx, objectPath)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				logger.Debug("preheat skipped asset",
					logger.String("object", objectPath), logger.ErrorField(err))
				return
			}
			loaded++
		}(path)
	}
	wg.Wait()

	logger.Info("asset preheat finished",
		logger.Int("loaded", loaded), logger.Int("failed", failed))
	return loaded, failed
}
