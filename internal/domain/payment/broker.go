package payment

import "context"

// StatusBroker fans transaction updates out to waiting clients. Delivery is
// best effort; subscribers re-check the stored state after subscribing.
type StatusBroker interface {
	Publish(ctx context.Context, u Update) error
	// Subscribe returns a channel receiving updates for one checkout request
	// and a cancel func that releases the subscription.
	Subscribe(ctx context.Context, checkoutRequestID string) (<-chan Update, func(), error)
}
