// Package models maps the billing tables to GORM structs. Every model has a
// pair of mappers to and from its domain type, and repositories only ever
// hand domain types to callers.
package models
