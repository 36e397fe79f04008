// Package notifications delivers anomaly alerts to external consumers.
package notifications

import (
	"context"

	"competitive-insights/models"
)

// Dispatcher delivers alerts. Delivery is fire-and-forget: failures are logged,
// never returned.
type Dispatcher interface {
	Deliver(ctx context.Context, alert models.Alert)
}

// Fanout delivers every alert to each of its dispatchers.
type Fanout []Dispatcher

func (f Fanout) Deliver(ctx context.Context, alert models.Alert) {
	for _, d := range f {
		if d != nil {
			d.Deliver(ctx, alert)
		}
	}
}
