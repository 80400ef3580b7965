package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockSubmitter struct {
	mock.Mock
}

func (m *mockSubmitter) Submit(kind JobKind, triggeredBy string) (*Job, error) {
	args := m.Called(kind, triggeredBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Job), args.Error(1)
}

func newTestTrigger(sub Submitter, now *time.Time) *CronTrigger {
	cfg := DefaultCronTriggerConfig()
	cfg.Location = time.UTC
	return NewCronTrigger(cfg, sub, nil).WithClock(func() time.Time { return *now })
}

func TestCronTrigger_FiresEachSlotOnce(t *testing.T) {
	sub := new(mockSubmitter)
	sub.On("Submit", mock.Anything, TriggeredByCron).Return(&Job{}, nil)

	now := time.Date(2025, 1, 1, 0, 30, 0, 0, time.UTC)
	trigger := newTestTrigger(sub, &now)

	assert.Empty(t, trigger.checkAndTrigger())

	now = time.Date(2025, 1, 1, 2, 0, 0, 0, time.UTC)
	assert.ElementsMatch(t, []JobKind{JobMonthlyInvoices, JobYearlyBilling}, trigger.checkAndTrigger())
	assert.Empty(t, trigger.checkAndTrigger())

	now = time.Date(2025, 1, 1, 8, 5, 0, 0, time.UTC)
	assert.Equal(t, []JobKind{JobPaymentReminder}, trigger.checkAndTrigger())

	now = time.Date(2025, 1, 2, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, []JobKind{JobPaymentReminder}, trigger.checkAndTrigger())

	now = time.Date(2025, 2, 1, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, []JobKind{JobMonthlyInvoices}, trigger.checkAndTrigger())

	sub.AssertNumberOfCalls(t, "Submit", 5)
}

func TestCronTrigger_RetriesSlotAfterSubmitError(t *testing.T) {
	sub := new(mockSubmitter)
	sub.On("Submit", JobMonthlyInvoices, TriggeredByCron).Return(nil, errors.New("queue full")).Once()
	sub.On("Submit", JobMonthlyInvoices, TriggeredByCron).Return(&Job{}, nil).Once()

	now := time.Date(2025, 3, 1, 1, 0, 0, 0, time.UTC)
	trigger := newTestTrigger(sub, &now)

	assert.Empty(t, trigger.checkAndTrigger())
	assert.Equal(t, []JobKind{JobMonthlyInvoices}, trigger.checkAndTrigger())
	sub.AssertExpectations(t)
}

func TestCronTrigger_UsesLocation(t *testing.T) {
	sub := new(mockSubmitter)
	sub.On("Submit", JobMonthlyInvoices, TriggeredByCron).Return(&Job{}, nil)

	cfg := DefaultCronTriggerConfig()
	cfg.ReminderHour = 23
	// 22:30 UTC on Feb 28 is 01:30 EAT on Mar 1
	now := time.Date(2025, 2, 28, 22, 30, 0, 0, time.UTC)
	trigger := NewCronTrigger(cfg, sub, nil).WithClock(func() time.Time { return now })

	assert.Equal(t, []JobKind{JobMonthlyInvoices}, trigger.checkAndTrigger())
}
