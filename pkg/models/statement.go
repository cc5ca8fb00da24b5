package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Window is an inclusive date range sent to the provider in one fetch call.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) StartDate() string { return w.Start.Format(time.DateOnly) }
func (w Window) EndDate() string   { return w.End.Format(time.DateOnly) }

// Days returns the number of calendar days covered by the window.
func (w Window) Days() int {
	return int(w.End.Sub(w.Start).Hours()/24) + 1
}

func (w Window) String() string {
	return w.StartDate() + ".." + w.EndDate()
}

// Statement is one provider response for a single window.
type Statement struct {
	Info         *StatementInfo
	Transactions []RawRecord
}

// StatementInfo is the statement header reported by the provider.
type StatementInfo struct {
	AccountID      FlexString          `json:"accountId"`
	BankID         FlexString          `json:"bankId"`
	Currency       string              `json:"currency"`
	IBAN           string              `json:"iban"`
	BIC            string              `json:"bic"`
	OpeningBalance decimal.NullDecimal `json:"openingBalance"`
	ClosingBalance decimal.NullDecimal `json:"closingBalance"`
	DateStart      string              `json:"dateStart"`
	DateEnd        string              `json:"dateEnd"`
	IDFrom         *int64              `json:"idFrom"`
	IDTo           *int64              `json:"idTo"`
}

// FlexString accepts both JSON strings and numbers. The provider is not
// consistent about how it encodes account and bank identifiers.
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = FlexString(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", string(data))
	}
	*s = FlexString(n.String())
	return nil
}
