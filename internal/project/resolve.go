package project

import (
	"context"
	"sync"
)

// ResolveAllDataroots resolves every registered dataroot concurrently,
// bounded by parallel workers, and returns the local path of each source
// by name. The first failure cancels the remaining fetches. The cache
// locks make concurrent fetches of a shared cache entry safe.
func (p *Project) ResolveAllDataroots(ctx context.Context, parallel int) (map[string]string, error) {
	names := p.Dataroots()
	if len(names) == 0 {
		return map[string]string{}, nil
	}
	if parallel <= 0 {
		parallel = 4
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool := make(chan struct{}, parallel)
	paths := make([]string, len(names))

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()

			select {
			case pool <- struct{}{}:
				defer func() { <-pool }()
			case <-ctx.Done():
				return
			}

			path, err := p.ResolveDataroot(ctx, name)
			if err != nil {
				once.Do(func() {
					firstErr = err
					cancel()
				})
				return
			}
			paths[i] = path
		}(i, name)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	out := make(map[string]string, len(names))
	for i, name := range names {
		out[name] = paths[i]
	}
	return out, nil
}
