package alerting

import (
	"context"
	"errors"
	"fmt"
)

// Channel pairs a notifier with the name used in configuration.
type Channel struct {
	Name     string
	Notifier Notifier
}

// Fanout delivers each notification to every channel, collecting failures.
type Fanout []Channel

// Notify sends to all channels even when some fail.
func (f Fanout) Notify(ctx context.Context, note Notification) error {
	var errs []error
	for _, ch := range f {
		if err := ch.Notifier.Notify(ctx, note); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name, err))
		}
	}
	return errors.Join(errs...)
}

var _ Notifier = Fanout(nil)
