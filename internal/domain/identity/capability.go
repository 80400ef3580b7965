package identity

// Action is an operation a role may perform on a resource
type Action string

const (
	ActionAll           Action = "*"
	ActionCreate        Action = "create"
	ActionRead          Action = "read"
	ActionUpdate        Action = "update"
	ActionCancel        Action = "cancel"
	ActionRecordPayment Action = "record_payment"
	ActionInitiate      Action = "initiate"
	ActionTrigger       Action = "trigger"
)

// Resource is something a capability applies to
type Resource string

const (
	ResourceAll          Resource = "*"
	ResourceInvoice      Resource = "invoice"
	ResourceDisbursement Resource = "disbursement"
	ResourceBilling      Resource = "billing"
	ResourceBillingRate  Resource = "billing_rate"
	ResourcePayment      Resource = "payment"
	ResourceReminder     Resource = "reminder"
	ResourceJob          Resource = "job"
)

// Capability is a single (action, resource) grant
type Capability struct {
	Action   Action
	Resource Resource
}

// Code returns the resource:action form of the capability
func (c Capability) Code() string {
	return string(c.Resource) + ":" + string(c.Action)
}

// Can is a convenience constructor
func Can(action Action, resource Resource) Capability {
	return Capability{Action: action, Resource: resource}
}

// resourceActions lists the concrete actions that exist for each resource.
// Wildcard grants expand against this table.
var resourceActions = map[Resource][]Action{
	ResourceInvoice:      {ActionCreate, ActionRead, ActionUpdate, ActionCancel, ActionRecordPayment},
	ResourceDisbursement: {ActionRead, ActionUpdate},
	ResourceBilling:      {ActionCreate, ActionRead},
	ResourceBillingRate:  {ActionRead, ActionUpdate},
	ResourcePayment:      {ActionInitiate, ActionRead},
	ResourceReminder:     {ActionRead},
	ResourceJob:          {ActionTrigger},
}

// DefaultGrants is the role matrix, written with group wildcards
var DefaultGrants = map[Role][]Capability{
	RoleAdmin: {
		Can(ActionAll, ResourceAll),
	},
	RoleSystem: {
		Can(ActionAll, ResourceAll),
	},
	RoleDeveloper: {
		Can(ActionAll, ResourceInvoice),
		Can(ActionAll, ResourceDisbursement),
		Can(ActionAll, ResourcePayment),
		Can(ActionRead, ResourceBilling),
		Can(ActionCreate, ResourceBilling),
		Can(ActionRead, ResourceBillingRate),
		Can(ActionRead, ResourceReminder),
	},
	RoleCaretaker: {
		Can(ActionCreate, ResourceInvoice),
		Can(ActionRead, ResourceInvoice),
		Can(ActionRecordPayment, ResourceInvoice),
		Can(ActionRead, ResourceDisbursement),
		Can(ActionAll, ResourcePayment),
		Can(ActionRead, ResourceReminder),
	},
	RoleTenant: {
		Can(ActionRead, ResourceInvoice),
		Can(ActionRecordPayment, ResourceInvoice),
		Can(ActionAll, ResourcePayment),
	},
}

// CapabilityTable answers capability checks against an expanded grant set
type CapabilityTable struct {
	grants map[Role]map[Capability]struct{}
}

// NewCapabilityTable expands the wildcard grants once into a lookup table
func NewCapabilityTable(grants map[Role][]Capability) *CapabilityTable {
	t := &CapabilityTable{grants: make(map[Role]map[Capability]struct{}, len(grants))}
	for role, caps := range grants {
		set := make(map[Capability]struct{})
		for _, c := range caps {
			for _, expanded := range expand(c) {
				set[expanded] = struct{}{}
			}
		}
		t.grants[role] = set
	}
	return t
}

// NewDefaultCapabilityTable builds the table from DefaultGrants
func NewDefaultCapabilityTable() *CapabilityTable {
	return NewCapabilityTable(DefaultGrants)
}

func expand(c Capability) []Capability {
	resources := []Resource{c.Resource}
	if c.Resource == ResourceAll {
		resources = resources[:0]
		for r := range resourceActions {
			resources = append(resources, r)
		}
	}

	var out []Capability
	for _, r := range resources {
		if c.Action != ActionAll {
			out = append(out, Capability{Action: c.Action, Resource: r})
			continue
		}
		for _, a := range resourceActions[r] {
			out = append(out, Capability{Action: a, Resource: r})
		}
	}
	return out
}

// Allows reports whether role holds the capability
func (t *CapabilityTable) Allows(role Role, c Capability) bool {
	set, ok := t.grants[role]
	if !ok {
		return false
	}
	_, ok = set[c]
	return ok
}

// Capabilities returns the expanded capability codes for a role
func (t *CapabilityTable) Capabilities(role Role) []string {
	set := t.grants[role]
	codes := make([]string, 0, len(set))
	for c := range set {
		codes = append(codes, c.Code())
	}
	return codes
}
