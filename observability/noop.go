package observability

import "context"

// NoOpObserver discards all events with zero overhead. It is the default
// for stores constructed without a subscriber.
type NoOpObserver struct{}

func (NoOpObserver) OnEvent(ctx context.Context, event Event) {}
