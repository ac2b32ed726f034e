package account

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// Account types and subtypes reported by the aggregator
	accountTypes = map[string]struct{}{
		"BANK":       {},
		"CREDIT":     {},
		"INVESTMENT": {},
		"LOAN":       {},
	}
	accountSubtypes = map[string]struct{}{
		"CHECKING_ACCOUNT": {},
		"SAVINGS_ACCOUNT":  {},
		"CREDIT_CARD":      {},
	}
	// Common ISO 4217 currency codes
	validCurrencies = map[string]struct{}{
		"BRL": {}, "USD": {}, "EUR": {}, "GBP": {}, "JPY": {},
		"CHF": {}, "CAD": {}, "AUD": {}, "MXN": {}, "ARS": {},
		"CLP": {}, "COP": {},
	}
)

// Domain errors
var (
	ErrInvalidAccountType    = errors.New("invalid account type")
	ErrInvalidAccountSubtype = errors.New("invalid account subtype")
	ErrAccountNotFound       = errors.New("account not found")
	ErrForbidden             = errors.New("access forbidden")
	ErrInvalidCurrency       = errors.New("valid ISO 4217 currency is required")
)

// Account is a ledger account fed from an aggregator item.
type Account struct {
	ID        string          `json:"id"` // aggregator account id
	UserID    int64           `json:"userId"`
	ItemID    string          `json:"itemId"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Subtype   string          `json:"subtype"`
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// UpsertParams contains parameters for upserting an account
type UpsertParams struct {
	ID       string
	UserID   int64
	ItemID   string
	Name     string
	Type     string
	Subtype  string
	Currency string
	Balance  decimal.Decimal
}

// Validate validates the upsert parameters
func (p UpsertParams) Validate() error {
	if p.ID == "" {
		return errors.New("account ID is required for upsert")
	}
	if p.UserID <= 0 {
		return errors.New("valid user ID is required for upsert")
	}
	if p.ItemID == "" {
		return errors.New("item ID is required for upsert")
	}
	if p.Name == "" {
		return errors.New("account name is required")
	}
	if !IsValidAccountType(p.Type) {
		return ErrInvalidAccountType
	}
	if p.Subtype != "" && !IsValidAccountSubtype(p.Subtype) {
		return ErrInvalidAccountSubtype
	}
	if !IsValidCurrency(p.Currency) {
		return ErrInvalidCurrency
	}
	return nil
}

// IsValidAccountType checks if the provided account type is valid.
func IsValidAccountType(t string) bool {
	_, ok := accountTypes[t]
	return ok
}

// IsValidAccountSubtype checks if the provided subtype is valid.
func IsValidAccountSubtype(s string) bool {
	_, ok := accountSubtypes[s]
	return ok
}

// IsValidCurrency checks if the provided currency is a valid ISO 4217 code.
func IsValidCurrency(c string) bool {
	if len(c) != 3 {
		return false
	}
	_, ok := validCurrencies[c]
	return ok
}
