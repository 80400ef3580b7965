package invoice

// Status represents the payment state of a rent invoice
type Status string

const (
	StatusDraft     Status = "draft"     // created by a gateway payment awaiting confirmation
	StatusIssued    Status = "issued"    // created by the monthly generator
	StatusPaid      Status = "paid"      // payment recorded
	StatusCancelled Status = "cancelled" // paid invoice invalidated by a privileged actor
	StatusRefunded  Status = "refunded"  // reserved, no operation moves an invoice here
)

var transitions = map[Status][]Status{
	StatusDraft:     {StatusIssued, StatusPaid, StatusCancelled},
	StatusIssued:    {StatusPaid},
	StatusPaid:      {StatusCancelled, StatusRefunded},
	StatusCancelled: {},
	StatusRefunded:  {},
}

// IsValid checks if the status is known
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// CanTransitionTo reports whether the state machine allows s -> next
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal returns true for states with no outgoing transition
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// Type distinguishes rent invoices from owner proceeds
type Type string

const (
	TypeTenantRent    Type = "tenant_rent"
	TypeOwnerProceeds Type = "owner_proceeds" // reserved
)

// PaymentMethod is how an invoice was settled
type PaymentMethod string

const (
	PaymentMethodMpesa  PaymentMethod = "mpesa"
	PaymentMethodCash   PaymentMethod = "cash"
	PaymentMethodCheque PaymentMethod = "cheque"
	PaymentMethodBank   PaymentMethod = "bank_transfer"
)

// IsValid checks if the payment method is known
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodMpesa, PaymentMethodCash, PaymentMethodCheque, PaymentMethodBank:
		return true
	}
	return false
}

// IsGateway reports whether the method settles through the mobile money gateway
func (m PaymentMethod) IsGateway() bool {
	return m == PaymentMethodMpesa
}
