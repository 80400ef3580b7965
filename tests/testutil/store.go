package testutil

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/application/txn"
	"github.com/propledger/backend/internal/domain/billing"
	"github.com/propledger/backend/internal/domain/invoice"
	"github.com/propledger/backend/internal/domain/job"
	"github.com/propledger/backend/internal/domain/notification"
	"github.com/propledger/backend/internal/domain/payment"
	"github.com/propledger/backend/internal/domain/pricing"
	"github.com/propledger/backend/internal/domain/property"
	"github.com/propledger/backend/internal/domain/reminder"
	"github.com/propledger/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Store is an in-memory implementation of the read model and every ledger
// repository, for application service tests. Records are copied on the way
// in and out so callers cannot mutate stored state by accident.
type Store struct {
	mu sync.Mutex

	Properties map[uuid.UUID]property.Property
	Units      map[uuid.UUID]property.Unit
	Floors     map[uuid.UUID]property.Floor
	Tenants    map[uuid.UUID]property.Tenant
	Services   map[uuid.UUID]property.Service
	Contacts   map[uuid.UUID]property.Contact

	invoices        map[uuid.UUID]invoice.Invoice
	reminders       map[uuid.UUID]reminder.Reminder
	accounts        map[uuid.UUID]billing.Account
	billingInvoices map[uuid.UUID]billing.Invoice
	transactions    map[uuid.UUID]payment.Transaction
	notifications   []notification.Notification
	runs            []job.Run
	rates           []pricing.Rate

	// InvoiceCreateHook, when set, can fail an invoice insert
	InvoiceCreateHook func(inv *invoice.Invoice) error
}

// NewStore creates an empty Store
func NewStore() *Store {
	return &Store{
		Properties:      map[uuid.UUID]property.Property{},
		Units:           map[uuid.UUID]property.Unit{},
		Floors:          map[uuid.UUID]property.Floor{},
		Tenants:         map[uuid.UUID]property.Tenant{},
		Services:        map[uuid.UUID]property.Service{},
		Contacts:        map[uuid.UUID]property.Contact{},
		invoices:        map[uuid.UUID]invoice.Invoice{},
		reminders:       map[uuid.UUID]reminder.Reminder{},
		accounts:        map[uuid.UUID]billing.Account{},
		billingInvoices: map[uuid.UUID]billing.Invoice{},
		transactions:    map[uuid.UUID]payment.Transaction{},
	}
}

// Scope returns a transaction scope over the store's repositories
func (s *Store) Scope() *txn.NoOpTransactionScope {
	return txn.NewNoOpTransactionScope(txn.Repositories{
		Invoices:        invoiceRepo{s},
		Reminders:       reminderRepo{s},
		BillingAccounts: accountRepo{s},
		BillingInvoices: billingInvoiceRepo{s},
		Transactions:    transactionRepo{s},
		Notifications:   notificationRepo{s},
		JobRuns:         runRepo{s},
		Rates:           rateWriter{s},
	})
}

// InvoiceRepository returns the invoice repository
func (s *Store) InvoiceRepository() invoice.Repository { return invoiceRepo{s} }

// ReminderRepository returns the reminder repository
func (s *Store) ReminderRepository() reminder.Repository { return reminderRepo{s} }

// AccountRepository returns the billing account repository
func (s *Store) AccountRepository() billing.AccountRepository { return accountRepo{s} }

// BillingInvoiceRepository returns the billing invoice repository
func (s *Store) BillingInvoiceRepository() billing.InvoiceRepository { return billingInvoiceRepo{s} }

// TransactionRepository returns the gateway transaction repository
func (s *Store) TransactionRepository() payment.TransactionRepository { return transactionRepo{s} }

// NotificationRepository returns the notification repository
func (s *Store) NotificationRepository() notification.Repository { return notificationRepo{s} }

// Seeding helpers

// AddProperty stores a property and returns it
func (s *Store) AddProperty(p property.Property) property.Property {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = property.StatusActive
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Properties[p.ID] = p
	return p
}

// AddUnit stores a unit and returns it
func (s *Store) AddUnit(u property.Unit) property.Unit {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Units[u.ID] = u
	return u
}

// AddFloor stores a floor and returns it
func (s *Store) AddFloor(f property.Floor) property.Floor {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Floors[f.ID] = f
	return f
}

// AddTenant stores a tenant and returns it
func (s *Store) AddTenant(t property.Tenant) property.Tenant {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Tenants[t.ID] = t
	return t
}

// AddService stores a property service and returns it
func (s *Store) AddService(svc property.Service) property.Service {
	if svc.ID == uuid.Nil {
		svc.ID = uuid.New()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Services[svc.ID] = svc
	return svc
}

// AddContact stores a platform user and returns it
func (s *Store) AddContact(c property.Contact) property.Contact {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Contacts[c.ID] = c
	return c
}

// PutInvoice stores an invoice as is
func (s *Store) PutInvoice(inv *invoice.Invoice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices[inv.ID] = copyInvoice(inv)
}

// Invoices returns every stored invoice
func (s *Store) Invoices() []invoice.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]invoice.Invoice, 0, len(s.invoices))
	for _, inv := range s.invoices {
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InvoiceNumber < out[j].InvoiceNumber })
	return out
}

// BillingInvoices returns every stored billing invoice ordered by period
func (s *Store) BillingInvoices() []billing.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]billing.Invoice, 0, len(s.billingInvoices))
	for _, inv := range s.billingInvoices {
		out = append(out, inv)
	}
	sortBilling(out)
	return out
}

// PutBillingInvoice stores a billing invoice as is
func (s *Store) PutBillingInvoice(inv *billing.Invoice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.billingInvoices[inv.ID] = copyBillingInvoice(inv)
}

// Accounts returns every stored billing account
func (s *Store) Accounts() []billing.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]billing.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	return out
}

// Reminders returns every stored reminder
func (s *Store) Reminders() []reminder.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]reminder.Reminder, 0, len(s.reminders))
	for _, r := range s.reminders {
		out = append(out, r)
	}
	return out
}

// Transactions returns every stored gateway transaction
func (s *Store) Transactions() []payment.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]payment.Transaction, 0, len(s.transactions))
	for _, t := range s.transactions {
		out = append(out, t)
	}
	return out
}

// Notifications returns every stored notification
func (s *Store) Notifications() []notification.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.notifications)
}

// Runs returns every recorded job run
func (s *Store) Runs() []job.Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.runs)
}

// Rates returns every rate written through the rate writer
func (s *Store) Rates() []pricing.Rate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.rates)
}

// property.Reader

// PropertyByID finds a property by ID
func (s *Store) PropertyByID(_ context.Context, id uuid.UUID) (*property.Property, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.Properties[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &p, nil
}

// UnitByID finds a unit by ID
func (s *Store) UnitByID(_ context.Context, id uuid.UUID) (*property.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.Units[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &u, nil
}

// FloorByID finds a floor by ID
func (s *Store) FloorByID(_ context.Context, id uuid.UUID) (*property.Floor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.Floors[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &f, nil
}

// TenantByID finds a tenant by ID
func (s *Store) TenantByID(_ context.Context, id uuid.UUID) (*property.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.Tenants[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &t, nil
}

// ActiveTenantForUnit finds the active tenant of a unit
func (s *Store) ActiveTenantForUnit(_ context.Context, unitID uuid.UUID) (*property.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.Tenants {
		if t.UnitID == unitID && t.IsActive {
			return &t, nil
		}
	}
	return nil, shared.ErrNotFound
}

// OccupiedUnits lists occupied units ordered by unit number
func (s *Store) OccupiedUnits(_ context.Context) ([]property.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []property.Unit
	for _, u := range s.Units {
		if u.IsOccupied {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnitNumber < out[j].UnitNumber })
	return out, nil
}

// MandatoryServices lists active mandatory services of a property
func (s *Store) MandatoryServices(_ context.Context, propertyID uuid.UUID) ([]property.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []property.Service
	for _, svc := range s.Services {
		if svc.PropertyID == propertyID && svc.IsMandatory && svc.IsActive {
			out = append(out, svc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ActivePropertiesByDeveloper lists active properties of a developer
func (s *Store) ActivePropertiesByDeveloper(_ context.Context, developerID uuid.UUID) ([]property.Property, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []property.Property
	for _, p := range s.Properties {
		if p.OwnedBy == developerID && p.IsActive() {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// DevelopersWithActiveProperties lists developers owning an active property
func (s *Store) DevelopersWithActiveProperties(_ context.Context) ([]property.Developer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byDev := map[uuid.UUID][]uuid.UUID{}
	for _, p := range s.Properties {
		if p.IsActive() {
			byDev[p.OwnedBy] = append(byDev[p.OwnedBy], p.ID)
		}
	}
	var out []property.Developer
	for id, props := range byDev {
		c, ok := s.Contacts[id]
		if !ok {
			c = property.Contact{ID: id}
		}
		out = append(out, property.Developer{Contact: c, ActivePropertyIDs: props})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

// ContactByID finds a platform user
func (s *Store) ContactByID(_ context.Context, id uuid.UUID) (*property.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.Contacts[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &c, nil
}

// invoice.Repository

type invoiceRepo struct{ s *Store }

func (r invoiceRepo) FindByID(_ context.Context, id uuid.UUID) (*invoice.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.invoices[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	out := copyInvoice(&inv)
	return &out, nil
}

func (r invoiceRepo) FindActiveForUnitPeriod(_ context.Context, unitID uuid.UUID, period invoice.Period) (*invoice.Invoice, error) {
	return r.findOne(func(inv *invoice.Invoice) bool {
		return inv.UnitID == unitID && inv.Period == period && inv.IsActive()
	})
}

func (r invoiceRepo) FindLeaseInvoice(_ context.Context, tenantID uuid.UUID, leaseStart time.Time) (*invoice.Invoice, error) {
	key := invoice.LeaseKey(leaseStart)
	return r.findOne(func(inv *invoice.Invoice) bool {
		return inv.TenantID == tenantID && inv.Period.IsLease() && inv.IsActive() &&
			inv.LeaseStart != nil && inv.LeaseStart.Equal(key)
	})
}

func (r invoiceRepo) findOne(match func(*invoice.Invoice) bool) (*invoice.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, inv := range r.s.invoices {
		if match(&inv) {
			out := copyInvoice(&inv)
			return &out, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r invoiceRepo) matching(f invoice.Filter) []invoice.Invoice {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []invoice.Invoice
	for _, inv := range r.s.invoices {
		switch {
		case f.PropertyID != nil && inv.PropertyID != *f.PropertyID:
		case f.PropertyIDs != nil && !slices.Contains(f.PropertyIDs, inv.PropertyID):
		case f.UnitID != nil && inv.UnitID != *f.UnitID:
		case f.TenantID != nil && inv.TenantID != *f.TenantID:
		case f.Period != nil && inv.Period != *f.Period:
		case f.Status != nil && inv.Status != *f.Status:
		case f.IsPaid != nil && inv.IsPaid != *f.IsPaid:
		default:
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InvoiceNumber < out[j].InvoiceNumber })
	return out
}

func (r invoiceRepo) FindAll(_ context.Context, f invoice.Filter) ([]invoice.Invoice, int64, error) {
	all := r.matching(f)
	return page(all, f.Filter), int64(len(all)), nil
}

func (r invoiceRepo) Summarize(_ context.Context, f invoice.Filter) (invoice.Summary, error) {
	sum := invoice.Summary{TotalBilled: decimal.Zero, TotalPaid: decimal.Zero, TotalOutstanding: decimal.Zero}
	for _, inv := range r.matching(f) {
		sum.Count++
		if inv.Status == invoice.StatusCancelled {
			continue
		}
		sum.TotalBilled = sum.TotalBilled.Add(inv.TotalAmount)
		if inv.IsPaid {
			sum.TotalPaid = sum.TotalPaid.Add(inv.TotalAmount)
		}
		sum.TotalOutstanding = sum.TotalOutstanding.Add(inv.Outstanding())
	}
	return sum, nil
}

func (r invoiceRepo) InvoicedUnitIDs(_ context.Context, period invoice.Period) ([]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []uuid.UUID
	for _, inv := range r.s.invoices {
		if inv.Period == period && inv.IsActive() {
			out = append(out, inv.UnitID)
		}
	}
	return out, nil
}

func (r invoiceRepo) CountForPropertyPeriod(_ context.Context, propertyID uuid.UUID, period invoice.Period) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, inv := range r.s.invoices {
		if inv.PropertyID == propertyID && inv.Period == period {
			n++
		}
	}
	return n, nil
}

func (r invoiceRepo) FindUnpaidIssued(_ context.Context, period invoice.Period) ([]invoice.Invoice, error) {
	status, unpaid := invoice.StatusIssued, false
	return r.matching(invoice.Filter{Period: &period, Status: &status, IsPaid: &unpaid}), nil
}

func (r invoiceRepo) DisbursementRows(_ context.Context, propertyID uuid.UUID, period invoice.Period) ([]invoice.ReportRow, error) {
	invs := r.matching(invoice.Filter{PropertyID: &propertyID, Period: &period})
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rows := make([]invoice.ReportRow, 0, len(invs))
	for _, inv := range invs {
		row := invoice.ReportRow{Invoice: inv}
		if u, ok := r.s.Units[inv.UnitID]; ok {
			row.UnitNumber = u.UnitNumber
			row.UnitType = u.Type
			row.OwnerID = u.OwnerID
			if f, ok := r.s.Floors[u.FloorID]; ok {
				row.FloorNumber = f.FloorNumber
			}
			if u.OwnerID != nil {
				row.OwnerName = r.s.Contacts[*u.OwnerID].Name
			}
		}
		if t, ok := r.s.Tenants[inv.TenantID]; ok {
			row.TenantName = t.Name
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (r invoiceRepo) Create(_ context.Context, inv *invoice.Invoice) error {
	if r.s.InvoiceCreateHook != nil {
		if err := r.s.InvoiceCreateHook(inv); err != nil {
			return err
		}
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.invoices[inv.ID]; ok {
		return shared.ErrAlreadyExists
	}
	for _, existing := range r.s.invoices {
		if !existing.IsActive() || existing.Period.IsLease() != inv.Period.IsLease() {
			continue
		}
		if inv.Period.IsLease() {
			if existing.TenantID == inv.TenantID && sameLease(existing.LeaseStart, inv.LeaseStart) {
				return shared.ErrAlreadyExists.WithMessage("Invoice already exists for this lease")
			}
			continue
		}
		if existing.UnitID == inv.UnitID && existing.Period == inv.Period {
			return shared.ErrAlreadyExists.WithMessage("Invoice already exists for this unit and period")
		}
	}
	r.s.invoices[inv.ID] = copyInvoice(inv)
	return nil
}

func (r invoiceRepo) SaveWithLock(_ context.Context, inv *invoice.Invoice) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.invoices[inv.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Version != inv.Version {
		return shared.ErrConcurrencyConflict
	}
	inv.Version++
	r.s.invoices[inv.ID] = copyInvoice(inv)
	return nil
}

func (r invoiceRepo) MarkReminded(_ context.Context, ids []uuid.UUID, at time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, id := range ids {
		inv, ok := r.s.invoices[id]
		if !ok {
			continue
		}
		inv.MarkReminded(at)
		r.s.invoices[id] = inv
		n++
	}
	return n, nil
}

// reminder.Repository

type reminderRepo struct{ s *Store }

func (r reminderRepo) FindByInvoice(_ context.Context, invoiceID uuid.UUID) (*reminder.Reminder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rem := range r.s.reminders {
		if rem.InvoiceID == invoiceID {
			return &rem, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r reminderRepo) Save(_ context.Context, rem *reminder.Reminder) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.reminders[rem.ID] = *rem
	return nil
}

func (r reminderRepo) FindAll(_ context.Context, f reminder.Filter) ([]reminder.Reminder, int64, error) {
	r.s.mu.Lock()
	var out []reminder.Reminder
	for _, rem := range r.s.reminders {
		switch {
		case f.PropertyID != nil && rem.PropertyID != *f.PropertyID:
		case f.PropertyIDs != nil && !slices.Contains(f.PropertyIDs, rem.PropertyID):
		case f.Period != nil && rem.Period != *f.Period:
		case f.Severity != nil && rem.Severity != *f.Severity:
		default:
			out = append(out, rem)
		}
	}
	r.s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].DaysOverdue > out[j].DaysOverdue })
	return page(out, f.Filter), int64(len(out)), nil
}

// billing.AccountRepository

type accountRepo struct{ s *Store }

func (r accountRepo) FindByDeveloper(_ context.Context, developerID uuid.UUID) (*billing.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.accounts {
		if a.DeveloperID == developerID {
			return &a, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r accountRepo) Save(_ context.Context, a *billing.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, existing := range r.s.accounts {
		if existing.DeveloperID == a.DeveloperID && id != a.ID {
			return shared.ErrAlreadyExists
		}
	}
	stored := *a
	stored.PullDomainEvents()
	r.s.accounts[a.ID] = stored
	return nil
}

func (r accountRepo) UpdateAllRates(_ context.Context, rate decimal.Decimal) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, a := range r.s.accounts {
		a.FixedMonthlyRate = rate
		r.s.accounts[id] = a
	}
	return int64(len(r.s.accounts)), nil
}

// billing.InvoiceRepository

type billingInvoiceRepo struct{ s *Store }

func (r billingInvoiceRepo) FindByID(_ context.Context, id uuid.UUID) (*billing.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.billingInvoices[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	out := copyBillingInvoice(&inv)
	return &out, nil
}

func (r billingInvoiceRepo) FindForPeriod(_ context.Context, developerID uuid.UUID, year, month int) (*billing.Invoice, error) {
	found := r.filter(func(inv *billing.Invoice) bool {
		return inv.DeveloperID == developerID && inv.Year == year && inv.Month == month
	})
	if len(found) == 0 {
		return nil, shared.ErrNotFound
	}
	return &found[0], nil
}

func (r billingInvoiceRepo) FindByDeveloperYear(_ context.Context, developerID uuid.UUID, year int) ([]billing.Invoice, error) {
	return r.filter(func(inv *billing.Invoice) bool {
		return inv.DeveloperID == developerID && inv.Year == year
	}), nil
}

func (r billingInvoiceRepo) FindAll(_ context.Context, f billing.InvoiceFilter) ([]billing.Invoice, int64, error) {
	all := r.filter(func(inv *billing.Invoice) bool {
		switch {
		case f.DeveloperID != nil && inv.DeveloperID != *f.DeveloperID:
		case f.Year != nil && inv.Year != *f.Year:
		case f.Month != nil && inv.Month != *f.Month:
		case f.IsPaid != nil && inv.IsPaid != *f.IsPaid:
		default:
			return true
		}
		return false
	})
	return page(all, f.Filter), int64(len(all)), nil
}

func (r billingInvoiceRepo) FindUnpaidFrom(_ context.Context, year, month int) ([]billing.Invoice, error) {
	from := year*12 + month
	return r.filter(func(inv *billing.Invoice) bool {
		return !inv.IsPaid && inv.Year*12+inv.Month >= from
	}), nil
}

func (r billingInvoiceRepo) CountForPeriod(_ context.Context, year, month int) (int64, error) {
	return int64(len(r.filter(func(inv *billing.Invoice) bool {
		return inv.Year == year && inv.Month == month
	}))), nil
}

func (r billingInvoiceRepo) filter(match func(*billing.Invoice) bool) []billing.Invoice {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []billing.Invoice
	for _, inv := range r.s.billingInvoices {
		if match(&inv) {
			out = append(out, copyBillingInvoice(&inv))
		}
	}
	sortBilling(out)
	return out
}

func (r billingInvoiceRepo) Create(_ context.Context, inv *billing.Invoice) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.billingInvoices {
		if existing.DeveloperID == inv.DeveloperID && existing.Year == inv.Year && existing.Month == inv.Month {
			return billing.ErrAlreadyExists
		}
		if existing.InvoiceNumber == inv.InvoiceNumber {
			return shared.ErrAlreadyExists.WithMessage("Invoice number already used")
		}
	}
	r.s.billingInvoices[inv.ID] = copyBillingInvoice(inv)
	return nil
}

func (r billingInvoiceRepo) SaveWithLock(_ context.Context, inv *billing.Invoice) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.billingInvoices[inv.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Version != inv.Version {
		return shared.ErrConcurrencyConflict
	}
	inv.Version++
	r.s.billingInvoices[inv.ID] = copyBillingInvoice(inv)
	return nil
}

func (r billingInvoiceRepo) DeleteUnpaidForYear(_ context.Context, developerID uuid.UUID, year int) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	referenced := map[uuid.UUID]bool{}
	for _, t := range r.s.transactions {
		if t.BillingInvoiceID != nil {
			referenced[*t.BillingInvoiceID] = true
		}
	}
	for id, inv := range r.s.billingInvoices {
		if inv.DeveloperID == developerID && inv.Year == year && !inv.IsPaid && !referenced[id] {
			delete(r.s.billingInvoices, id)
			n++
		}
	}
	return n, nil
}

// payment.TransactionRepository

type transactionRepo struct{ s *Store }

func (r transactionRepo) FindByID(_ context.Context, id uuid.UUID) (*payment.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.transactions[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &t, nil
}

func (r transactionRepo) FindByCheckoutID(_ context.Context, checkoutRequestID string) (*payment.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.transactions {
		if t.CheckoutRequestID == checkoutRequestID {
			return &t, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r transactionRepo) Create(_ context.Context, t *payment.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.transactions {
		if existing.CheckoutRequestID == t.CheckoutRequestID {
			return shared.ErrAlreadyExists
		}
	}
	stored := *t
	stored.PullDomainEvents()
	r.s.transactions[t.ID] = stored
	return nil
}

func (r transactionRepo) SaveWithLock(_ context.Context, t *payment.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.transactions[t.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Version != t.Version {
		return shared.ErrConcurrencyConflict
	}
	t.Version++
	stored = *t
	stored.PullDomainEvents()
	r.s.transactions[t.ID] = stored
	return nil
}

type notificationRepo struct{ s *Store }

func (r notificationRepo) Create(_ context.Context, n *notification.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.notifications = append(r.s.notifications, *n)
	return nil
}

type runRepo struct{ s *Store }

func (r runRepo) Create(_ context.Context, run *job.Run) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.runs = append(r.s.runs, *run)
	return nil
}

func (r runRepo) FindRecent(_ context.Context, name job.Name, limit int) ([]job.Run, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []job.Run
	for i := len(r.s.runs) - 1; i >= 0 && len(out) < limit; i-- {
		if r.s.runs[i].Job == name {
			out = append(out, r.s.runs[i])
		}
	}
	return out, nil
}

type rateWriter struct{ s *Store }

func (w rateWriter) SetActiveRate(_ context.Context, rate pricing.Rate) error {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	w.s.rates = append(w.s.rates, rate)
	return nil
}

func copyInvoice(inv *invoice.Invoice) invoice.Invoice {
	out := *inv
	out.PullDomainEvents()
	out.ServiceCharges = slices.Clone(inv.ServiceCharges)
	return out
}

func copyBillingInvoice(inv *billing.Invoice) billing.Invoice {
	out := *inv
	out.PullDomainEvents()
	out.Properties = slices.Clone(inv.Properties)
	return out
}

func sortBilling(out []billing.Invoice) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		if out[i].Month != out[j].Month {
			return out[i].Month < out[j].Month
		}
		return strings.Compare(out[i].DeveloperName, out[j].DeveloperName) < 0
	})
}

func page[T any](items []T, f shared.Filter) []T {
	if f.PageSize <= 0 {
		return items
	}
	start := (max(f.Page, 1) - 1) * f.PageSize
	if start >= len(items) {
		return []T{}
	}
	end := min(start+f.PageSize, len(items))
	return items[start:end]
}

var (
	_ property.Reader               = (*Store)(nil)
	_ invoice.Repository            = invoiceRepo{}
	_ reminder.Repository           = reminderRepo{}
	_ billing.AccountRepository     = accountRepo{}
	_ billing.InvoiceRepository     = billingInvoiceRepo{}
	_ payment.TransactionRepository = transactionRepo{}
	_ notification.Repository       = notificationRepo{}
	_ job.RunRepository             = runRepo{}
	_ pricing.RateWriter            = rateWriter{}
)

func sameLease(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
