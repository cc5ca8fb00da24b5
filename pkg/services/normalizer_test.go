package services

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vpnda/fio-sync/pkg/models"
)

func rawRecord(t *testing.T, data string) models.RawRecord {
	t.Helper()
	var record models.RawRecord
	require.NoError(t, json.Unmarshal([]byte(data), &record))
	return record
}

const fioRecord = `{
	"column22": {"value": 26962199069, "name": "ID pohybu", "id": 22},
	"column0": {"value": "2024-05-02+0200", "name": "Datum", "id": 0},
	"column1": {"value": -150.50, "name": "Objem", "id": 1},
	"column14": {"value": "CZK", "name": "Měna", "id": 14},
	"column2": {"value": "2900000000", "name": "Protiúčet", "id": 2},
	"column10": {"value": "ACME s.r.o.", "name": "Název protiúčtu", "id": 10},
	"column3": {"value": "2010", "name": "Kód banky", "id": 3},
	"column12": null,
	"column4": {"value": "0308", "name": "KS", "id": 4},
	"column5": {"value": "1234567890", "name": "VS", "id": 5},
	"column6": null,
	"column7": {"value": "Nákup: Coffee", "name": "Uživatelská identifikace", "id": 7},
	"column16": {"value": "Invoice 42", "name": "Zpráva pro příjemce", "id": 16},
	"column8": {"value": "Bezhotovostní platba", "name": "Typ", "id": 8},
	"column25": {"value": "monthly", "name": "Komentář", "id": 25}
}`

func TestNormalizeFioRecord(t *testing.T) {
	n := NewNormalizer()
	tx := n.Normalize("org-1", 7, rawRecord(t, fioRecord), "EUR")

	assert.Equal(t, "26962199069", tx.UID)
	assert.Equal(t, "org-1", tx.OrgID)
	assert.Equal(t, int64(7), tx.AccountID)
	assert.Equal(t, "2024-05-02", tx.BookingDateString())
	require.True(t, tx.Amount.Valid)
	assert.Equal(t, "-150.5", tx.Amount.Decimal.String())
	assert.Equal(t, "CZK", tx.Currency)
	assert.Equal(t, "Bezhotovostní platba", tx.Type)
	assert.Equal(t, "2900000000", tx.CounterpartyAccount)
	assert.Equal(t, "2010", tx.CounterpartyBankCode)
	assert.Equal(t, "ACME s.r.o.", tx.CounterpartyName)
	assert.Equal(t, "1234567890", tx.VariableSymbol)
	assert.Equal(t, "", tx.SpecificSymbol)
	assert.Equal(t, "0308", tx.ConstantSymbol)
	assert.Equal(t, "Invoice 42", tx.Message)
	assert.Equal(t, "monthly", tx.Comment)

	assert.Contains(t, tx.Fields, "Objem")
	assert.NotContains(t, tx.Fields, "column12")
	assert.JSONEq(t, fioRecord, string(tx.Raw))
}

func TestNormalizeFallbacks(t *testing.T) {
	n := NewNormalizer()

	t.Run("Plain English keys", func(t *testing.T) {
		tx := n.Normalize("org-1", 1, rawRecord(t, `{
			"date": "02.05.2024",
			"AMOUNT": "1 234,50",
			"currency": "eur",
			"Variable Symbol": "77",
			"message": "hello"
		}`), "")

		assert.Equal(t, "2024-05-02", tx.BookingDateString())
		assert.Equal(t, "1234.5", tx.Amount.Decimal.String())
		assert.Equal(t, "EUR", tx.Currency)
		assert.Equal(t, "77", tx.VariableSymbol)
		assert.Equal(t, "hello", tx.Message)
		assert.True(t, strings.HasPrefix(tx.UID, "fp_"))
	})

	t.Run("Labels without diacritics", func(t *testing.T) {
		tx := n.Normalize("org-1", 1, rawRecord(t, `{
			"a": {"name": "Kod banky", "value": "0800"},
			"b": {"name": "MENA", "value": "CZK"}
		}`), "")
		assert.Equal(t, "0800", tx.CounterpartyBankCode)
		assert.Equal(t, "CZK", tx.Currency)
	})

	t.Run("Column ids when names are missing", func(t *testing.T) {
		tx := n.Normalize("org-1", 1, rawRecord(t, `{
			"column0": {"id": 0, "value": "2024-01-15+0100"},
			"column1": {"id": 1, "value": 99},
			"column22": {"id": 22, "value": 123}
		}`), "")
		assert.Equal(t, "123", tx.UID)
		assert.Equal(t, "2024-01-15", tx.BookingDateString())
		assert.Equal(t, "99", tx.Amount.Decimal.String())
	})

	t.Run("Message falls back to user identification", func(t *testing.T) {
		tx := n.Normalize("org-1", 1, rawRecord(t, `{
			"column7": {"id": 7, "name": "Uživatelská identifikace", "value": "Card payment"}
		}`), "")
		assert.Equal(t, "Card payment", tx.Message)
	})

	t.Run("Statement currency when the record has none", func(t *testing.T) {
		tx := n.Normalize("org-1", 1, rawRecord(t, `{"column1": {"id": 1, "value": 5}}`), "czk")
		assert.Equal(t, "CZK", tx.Currency)
	})
}

func TestFingerprintStability(t *testing.T) {
	n := NewNormalizer()

	a := n.Normalize("org-1", 3, rawRecord(t, `{
		"column0": {"id": 0, "name": "Datum", "value": "2024-05-02+0200"},
		"column1": {"id": 1, "name": "Objem", "value": "-150.50"},
		"column5": {"id": 5, "name": "VS", "value": "42"},
		"column16": {"id": 16, "name": "Zpráva pro příjemce", "value": "Rent"}
	}`), "CZK")
	b := n.Normalize("org-1", 3, rawRecord(t, `{
		"column16": {"name": "Zpráva pro příjemce", "id": 16, "value": "Rent"},
		"column5": {"value": "42", "name": "VS", "id": 5},
		"column1": {"value": -150.5, "name": "Objem", "id": 1},
		"column0": {"value": "2024-05-02", "name": "Datum", "id": 0}
	}`), "CZK")

	assert.True(t, strings.HasPrefix(a.UID, "fp_"))
	assert.Len(t, a.UID, len("fp_")+64)
	assert.Equal(t, a.UID, b.UID)
	assert.Equal(t, a.UID, Fingerprint(a))

	t.Run("Identity is scoped by tenant and account", func(t *testing.T) {
		other := a
		other.AccountID = 4
		assert.NotEqual(t, a.UID, Fingerprint(other))

		other = a
		other.OrgID = "org-2"
		assert.NotEqual(t, a.UID, Fingerprint(other))
	})

	t.Run("Any hashed field changes the identity", func(t *testing.T) {
		other := a
		other.Message = "Rent May"
		assert.NotEqual(t, a.UID, Fingerprint(other))
	})
}

func TestProviderIDWinsOverFingerprint(t *testing.T) {
	n := NewNormalizer()
	body := `"column0": {"id": 0, "name": "Datum", "value": "2024-05-02"},
		"column1": {"id": 1, "name": "Objem", "value": 100},
		"column5": {"id": 5, "name": "VS", "value": "1"},
		"column16": {"id": 16, "name": "Zpráva pro příjemce", "value": "same"}`

	first := n.Normalize("org-1", 1, rawRecord(t, `{"column22": {"id": 22, "name": "ID pohybu", "value": 1001}, `+body+`}`), "CZK")
	second := n.Normalize("org-1", 1, rawRecord(t, `{"column22": {"id": 22, "name": "ID pohybu", "value": 1002}, `+body+`}`), "CZK")

	assert.Equal(t, "1001", first.UID)
	assert.Equal(t, "1002", second.UID)
	assert.NotEqual(t, first.UID, second.UID)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
		valid bool
	}{
		{"json number", json.Number("-150.50"), "-150.5", true},
		{"float", 12.25, "12.25", true},
		{"plain string", "100", "100", true},
		{"decimal comma", "12,50", "12.5", true},
		{"nbsp thousands", "1\u00a0234,56", "1234.56", true},
		{"dotted thousands", "1.234.567,89", "1234567.89", true},
		{"comma thousands", "1,234.56", "1234.56", true},
		{"negative with spaces", " -  5,00 ", "-5", true},
		{"text", "n/a", "", false},
		{"empty", "", "", false},
		{"nil", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseAmount(tt.input)
			assert.Equal(t, tt.valid, got.Valid)
			if tt.valid {
				assert.Equal(t, tt.want, got.Decimal.String())
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		input any
		want  string
	}{
		{"2024-05-02", "2024-05-02"},
		{"2024-05-02+0200", "2024-05-02"},
		{"2024-05-02T10:11:12Z", "2024-05-02"},
		{"02.05.2024", "2024-05-02"},
		{"2.5.2024", "2024-05-02"},
		{"2024/05/02", "2024-05-02"},
		{"31.02.2024", ""},
		{"yesterday", ""},
		{"", ""},
		{nil, ""},
	}

	for _, tt := range tests {
		got := ParseDate(tt.input)
		if tt.want == "" {
			assert.Nil(t, got, "%v", tt.input)
			continue
		}
		require.NotNil(t, got, "%v", tt.input)
		assert.Equal(t, tt.want, got.Format("2006-01-02"), "%v", tt.input)
	}
}
