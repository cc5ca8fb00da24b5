package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Transaction is one canonical ledger entry. It is unique by (OrgID, AccountID, UID).
type Transaction struct {
	OrgID     string `json:"org_id"`
	AccountID int64  `json:"account_id"`
	UID       string `json:"transaction_uid"`

	BookingDate *time.Time          `json:"booking_date"`
	Amount      decimal.NullDecimal `json:"amount"`
	Currency    string              `json:"currency,omitempty"`
	Type        string              `json:"type,omitempty"`

	CounterpartyAccount  string `json:"counterparty_account,omitempty"`
	CounterpartyBankCode string `json:"counterparty_bank_code,omitempty"`
	CounterpartyName     string `json:"counterparty_name,omitempty"`

	VariableSymbol string `json:"variable_symbol,omitempty"`
	SpecificSymbol string `json:"specific_symbol,omitempty"`
	ConstantSymbol string `json:"constant_symbol,omitempty"`

	Message string `json:"message,omitempty"`
	Comment string `json:"comment,omitempty"`

	// Fields is the flat bag of every named raw field
	Fields map[string]any `json:"fields,omitempty"`
	// Raw is the provider record exactly as received
	Raw json.RawMessage `json:"raw,omitempty"`

	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// BookingDateString returns the booking date as YYYY-MM-DD, or an empty string.
func (t *Transaction) BookingDateString() string {
	if t.BookingDate == nil {
		return ""
	}
	return t.BookingDate.Format(time.DateOnly)
}

// PrintFormatted prints the transaction in a formatted way
func (t *Transaction) PrintFormatted() {
	fmt.Printf("Transaction Details:\n")
	fmt.Printf("	UID: %s\n", t.UID)
	if t.BookingDate != nil {
		fmt.Printf("	Date: %s\n", t.BookingDateString())
	}
	if t.Amount.Valid {
		fmt.Printf("	Amount: %s\n", FormatMoney(t.Amount.Decimal, t.Currency))
	}
	if t.CounterpartyName != "" || t.CounterpartyAccount != "" {
		fmt.Printf("	Counterparty: %s %s/%s\n", t.CounterpartyName, t.CounterpartyAccount, t.CounterpartyBankCode)
	}
	if t.VariableSymbol != "" {
		fmt.Printf("	VS: %s\n", t.VariableSymbol)
	}
	if t.Message != "" {
		fmt.Printf("	Message: %s\n", t.Message)
	}
}

// FormatMoney renders an amount in the currency's display format. Unknown or
// empty currencies fall back to the plain decimal representation.
func FormatMoney(amount decimal.Decimal, currency string) string {
	if currency == "" {
		return amount.String()
	}
	c := money.GetCurrency(currency)
	if c == nil {
		return amount.String() + " " + currency
	}
	minor := amount.Shift(int32(c.Fraction)).Round(0).IntPart()
	return money.New(minor, c.Code).Display()
}
