package notify

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Multi fans an event out to several dispatchers concurrently
type Multi []Dispatcher

// Dispatch delivers to every dispatcher, even when some fail, and joins
// their errors
func (m Multi) Dispatch(ctx context.Context, event Event) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)

	for _, d := range m {
		d := d
		g.Go(func() error {
			if err := d.Dispatch(ctx, event); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}
