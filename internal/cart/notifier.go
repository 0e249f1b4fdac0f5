package cart

import "context"

// Notifier broadcasts that a cart slot changed. Signals carry no payload and
// delivery is best-effort, so subscribers must re-read the Store rather than
// assume they observed every intermediate state.
type Notifier interface {
	Publish(ctx context.Context)
	Subscribe(handler func()) (unsubscribe func())
}

type nopNotifier struct{}

func (nopNotifier) Publish(context.Context) {}

func (nopNotifier) Subscribe(func()) func() { return func() {} }

// NopNotifier drops every signal.
func NopNotifier() Notifier {
	return nopNotifier{}
}
