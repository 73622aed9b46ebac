package payments

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/simcheck/simcheck-backend/pkg/enums"
)

// Package is a purchasable bundle of credits.
type Package struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Credits       int              `json:"credits"`
	CreditType    enums.CreditType `json:"credit_type"`
	Amount        decimal.Decimal  `json:"amount"`
	Currency      string           `json:"currency"`
	PaddlePriceID string           `json:"paddle_price_id,omitempty"`
}

// Catalog is the ordered list of packages offered at checkout.
type Catalog []Package

// DefaultCatalog lists the credit packages sold by the platform.
func DefaultCatalog() Catalog {
	return Catalog{
		{ID: "full-1", Name: "1 full scan", Credits: 1, CreditType: enums.CreditTypeFull, Amount: decimal.RequireFromString("9.99"), Currency: "EUR", PaddlePriceID: "pri_full_1"},
		{ID: "full-5", Name: "5 full scans", Credits: 5, CreditType: enums.CreditTypeFull, Amount: decimal.RequireFromString("44.99"), Currency: "EUR", PaddlePriceID: "pri_full_5"},
		{ID: "full-10", Name: "10 full scans", Credits: 10, CreditType: enums.CreditTypeFull, Amount: decimal.RequireFromString("84.99"), Currency: "EUR", PaddlePriceID: "pri_full_10"},
		{ID: "similarity-1", Name: "1 similarity scan", Credits: 1, CreditType: enums.CreditTypeSimilarity, Amount: decimal.RequireFromString("5.99"), Currency: "EUR", PaddlePriceID: "pri_sim_1"},
		{ID: "similarity-5", Name: "5 similarity scans", Credits: 5, CreditType: enums.CreditTypeSimilarity, Amount: decimal.RequireFromString("26.99"), Currency: "EUR", PaddlePriceID: "pri_sim_5"},
	}
}

// Find returns the package with the given id.
func (c Catalog) Find(id string) (Package, bool) {
	id = strings.TrimSpace(strings.ToLower(id))
	for _, pkg := range c {
		if pkg.ID == id {
			return pkg, true
		}
	}
	return Package{}, false
}
