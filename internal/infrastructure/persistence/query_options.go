package persistence

import (
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/propledger/backend/internal/domain/shared"
)

// Sortable columns per listing. Anything else in Filter.OrderBy is ignored,
// so client input never reaches the ORDER BY clause.
var (
	invoiceSortColumns = map[string]bool{
		"created_at":     true,
		"updated_at":     true,
		"invoice_number": true,
		"due_date":       true,
		"total_amount":   true,
		"status":         true,
		"payment_date":   true,
		"year":           true,
		"month":          true,
	}
	reminderSortColumns = map[string]bool{
		"created_at":   true,
		"days_overdue": true,
		"amount_due":   true,
		"severity":     true,
		"last_sent_at": true,
	}
	billingInvoiceSortColumns = map[string]bool{
		"created_at":     true,
		"invoice_number": true,
		"total_amount":   true,
		"due_date":       true,
		"year":           true,
		"month":          true,
	}
)

// applySort orders by a whitelisted column, or by fallback when the filter
// names none that is allowed
func applySort(query *gorm.DB, filter shared.Filter, allowed map[string]bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(filter.OrderBy)
	if !allowed[column] {
		return query.Order(fallback)
	}
	dir := "DESC"
	if strings.EqualFold(strings.TrimSpace(filter.OrderDir), "asc") {
		dir = "ASC"
	}
	return query.Order(column + " " + dir)
}

// applyPagination limits a query to the filter's page. A zero page size
// returns every row.
func applyPagination(query *gorm.DB, filter shared.Filter) *gorm.DB {
	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset((filter.Page - 1) * filter.PageSize).Limit(filter.PageSize)
	}
	return query
}

// lockRows adds FOR UPDATE when lock is set. Repositories handed out by a
// transaction scope lock the aggregates they load until commit.
func lockRows(query *gorm.DB, lock bool) *gorm.DB {
	if !lock {
		return query
	}
	return query.Clauses(clause.Locking{Strength: "UPDATE"})
}
