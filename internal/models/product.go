package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is a read-only reference into the product catalog. The billing
// engine snapshots UnitPrice and Currency onto the subscription at creation,
// so later catalog edits never change what an existing subscriber pays.
type Product struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	Name      string          `json:"name" db:"name"`
	UnitPrice decimal.Decimal `json:"unit_price" db:"unit_price"`
	Currency  string          `json:"currency" db:"currency"`
}
