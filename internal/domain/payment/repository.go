package payment

import (
	"context"

	"github.com/google/uuid"
)

// TransactionRepository defines persistence for gateway transactions
type TransactionRepository interface {
	// FindByID finds a transaction by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Transaction, error)

	// FindByCheckoutID finds a transaction by the gateway correlation ID
	FindByCheckoutID(ctx context.Context, checkoutRequestID string) (*Transaction, error)

	// Create inserts a new transaction
	Create(ctx context.Context, t *Transaction) error

	// SaveWithLock updates a transaction if its version is unchanged, then advances it
	SaveWithLock(ctx context.Context, t *Transaction) error
}
