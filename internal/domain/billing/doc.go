// Package billing models the platform's consolidated developer billing: one
// account per developer and one invoice per developer and month covering
// every active property the developer owns.
//
// Property lines are snapshotted when an invoice is created. They change
// afterwards only through AppendProperty, for a property added mid-year, and
// ApplyRate, for an explicit rate change on an unpaid invoice.
package billing
