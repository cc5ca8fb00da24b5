package services

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vpnda/fio-sync/pkg/models"
	"github.com/vpnda/fio-sync/pkg/utils"
)

type canonicalField int

const (
	fieldMovementID canonicalField = iota
	fieldDate
	fieldAmount
	fieldCurrency
	fieldType
	fieldCounterpartyAccount
	fieldCounterpartyBankCode
	fieldCounterpartyName
	fieldVariableSymbol
	fieldSpecificSymbol
	fieldConstantSymbol
	fieldMessage
	fieldComment
)

// fieldLabels lists the Czech and English labels a field may arrive under,
// and the provider column ids used when no label matches.
var fieldLabels = map[canonicalField]struct {
	labels  []string
	columns []int64
}{
	fieldMovementID:           {[]string{"ID pohybu", "Movement ID", "Transaction ID", "ID"}, []int64{22}},
	fieldDate:                 {[]string{"Datum", "Date", "Booking date", "Datum zaúčtování"}, []int64{0}},
	fieldAmount:               {[]string{"Objem", "Amount", "Částka", "Volume"}, []int64{1}},
	fieldCurrency:             {[]string{"Měna", "Currency"}, []int64{14}},
	fieldType:                 {[]string{"Typ", "Type", "Typ pohybu", "Transaction type"}, []int64{8}},
	fieldCounterpartyAccount:  {[]string{"Protiúčet", "Counter account", "Counterparty account"}, []int64{2}},
	fieldCounterpartyBankCode: {[]string{"Kód banky", "Bank code", "Counterparty bank code"}, []int64{3}},
	fieldCounterpartyName:     {[]string{"Název protiúčtu", "Counter account name", "Counterparty name"}, []int64{10}},
	fieldVariableSymbol:       {[]string{"VS", "Variabilní symbol", "Variable symbol"}, []int64{5}},
	fieldSpecificSymbol:       {[]string{"SS", "Specifický symbol", "Specific symbol"}, []int64{6}},
	fieldConstantSymbol:       {[]string{"KS", "Konstantní symbol", "Constant symbol"}, []int64{4}},
	fieldMessage: {
		[]string{"Zpráva pro příjemce", "Message for recipient", "Message", "Uživatelská identifikace", "User identification"},
		[]int64{16, 7},
	},
	fieldComment: {[]string{"Komentář", "Comment"}, []int64{25}},
}

type fieldLookup struct {
	labels  []string
	folded  []string
	columns []int64
}

// Normalizer maps raw provider records onto canonical transactions. It is
// safe for concurrent use.
type Normalizer struct {
	lookups map[canonicalField]fieldLookup
}

// NewNormalizer builds a normalizer with its label tables folded once.
func NewNormalizer() *Normalizer {
	n := &Normalizer{lookups: make(map[canonicalField]fieldLookup, len(fieldLabels))}
	for f, def := range fieldLabels {
		folded := make([]string, len(def.labels))
		for i, label := range def.labels {
			folded[i] = utils.FoldLabel(label)
		}
		n.lookups[f] = fieldLookup{labels: def.labels, folded: folded, columns: def.columns}
	}
	return n
}

// resolvedRecord is a raw record flattened once, with a folded index on top.
type resolvedRecord struct {
	models.ResolvedFields
	folded map[string]any
}

func resolve(record *models.RawRecord) resolvedRecord {
	fields := record.Resolve()

	names := make([]string, 0, len(fields.ByName))
	for name := range fields.ByName {
		names = append(names, name)
	}
	sort.Strings(names)

	folded := make(map[string]any, len(names))
	for _, name := range names {
		key := utils.FoldLabel(name)
		if existing, ok := folded[key]; !ok || existing == nil {
			folded[key] = fields.ByName[name]
		}
	}
	return resolvedRecord{ResolvedFields: fields, folded: folded}
}

func (n *Normalizer) lookup(r resolvedRecord, f canonicalField) any {
	l := n.lookups[f]
	for _, label := range l.labels {
		if v := r.ByName[label]; v != nil {
			return v
		}
	}
	for _, key := range l.folded {
		if v := r.folded[key]; v != nil {
			return v
		}
	}
	for _, column := range l.columns {
		if v := r.ByColumn[column]; v != nil {
			return v
		}
	}
	return nil
}

func (n *Normalizer) lookupString(r resolvedRecord, f canonicalField) string {
	return stringValue(n.lookup(r, f))
}

// Normalize converts one raw record into a canonical transaction for the
// given tenant and account. fallbackCurrency is used when the record carries
// none, typically the statement currency.
func (n *Normalizer) Normalize(orgID string, accountID int64, record models.RawRecord, fallbackCurrency string) models.Transaction {
	r := resolve(&record)

	t := models.Transaction{
		OrgID:                orgID,
		AccountID:            accountID,
		BookingDate:          ParseDate(n.lookup(r, fieldDate)),
		Amount:               ParseAmount(n.lookup(r, fieldAmount)),
		Currency:             strings.ToUpper(n.lookupString(r, fieldCurrency)),
		Type:                 n.lookupString(r, fieldType),
		CounterpartyAccount:  n.lookupString(r, fieldCounterpartyAccount),
		CounterpartyBankCode: n.lookupString(r, fieldCounterpartyBankCode),
		CounterpartyName:     n.lookupString(r, fieldCounterpartyName),
		VariableSymbol:       n.lookupString(r, fieldVariableSymbol),
		SpecificSymbol:       n.lookupString(r, fieldSpecificSymbol),
		ConstantSymbol:       n.lookupString(r, fieldConstantSymbol),
		Message:              n.lookupString(r, fieldMessage),
		Comment:              n.lookupString(r, fieldComment),
		Raw:                  record.Raw,
	}
	if t.Currency == "" {
		t.Currency = strings.ToUpper(strings.TrimSpace(fallbackCurrency))
	}

	t.Fields = make(map[string]any, len(r.ByName))
	for name, v := range r.ByName {
		if v != nil {
			t.Fields[name] = v
		}
	}

	if id := n.lookupString(r, fieldMovementID); id != "" {
		t.UID = id
	} else {
		t.UID = Fingerprint(t)
	}
	return t
}

// Fingerprint derives a deterministic identity for a transaction that has no
// provider id. Two transactions agreeing on every hashed field on the same day
// share a fingerprint.
func Fingerprint(t models.Transaction) string {
	amount := ""
	if t.Amount.Valid {
		amount = t.Amount.Decimal.String()
	}
	parts := []string{
		"org:" + t.OrgID,
		"account:" + strconv.FormatInt(t.AccountID, 10),
		"date:" + t.BookingDateString(),
		"amount:" + amount,
		"vs:" + t.VariableSymbol,
		"ss:" + t.SpecificSymbol,
		"ks:" + t.ConstantSymbol,
		"type:" + t.Type,
		"message:" + t.Message,
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return "fp_" + hex.EncodeToString(sum[:])
}

var amountSpaces = strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "", "\u2009", "", "\t", "")

// ParseAmount parses a signed amount as delivered by the provider. Decimal
// commas are accepted; when several dots remain only the last one separates
// the fraction. Anything unparseable yields an invalid NullDecimal.
func ParseAmount(v any) decimal.NullDecimal {
	switch v := v.(type) {
	case nil:
		return decimal.NullDecimal{}
	case json.Number:
		if d, err := decimal.NewFromString(v.String()); err == nil {
			return decimal.NewNullDecimal(d)
		}
	case float64:
		return decimal.NewNullDecimal(decimal.NewFromFloat(v))
	case int64:
		return decimal.NewNullDecimal(decimal.NewFromInt(v))
	case int:
		return decimal.NewNullDecimal(decimal.NewFromInt(int64(v)))
	}

	s := amountSpaces.Replace(stringValue(v))
	s = strings.ReplaceAll(s, ",", ".")
	if strings.Count(s, ".") > 1 {
		last := strings.LastIndex(s, ".")
		s = strings.ReplaceAll(s[:last], ".", "") + s[last:]
	}
	if s == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

var (
	isoDatePrefix = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})`)
	czechDate     = regexp.MustCompile(`^(\d{1,2})\.\s*(\d{1,2})\.\s*(\d{4})$`)
)

var fallbackDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"02/01/2006",
	"20060102",
	time.RFC1123Z,
	time.RFC1123,
}

// ParseDate parses a booking date. It returns nil for anything it cannot read.
func ParseDate(v any) *time.Time {
	s := strings.TrimSpace(stringValue(v))
	if s == "" {
		return nil
	}

	if m := isoDatePrefix.FindStringSubmatch(s); m != nil {
		if t, err := time.Parse(time.DateOnly, m[1]); err == nil {
			return &t
		}
	}
	if m := czechDate.FindStringSubmatch(s); m != nil {
		d, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		y, _ := strconv.Atoi(m[3])
		t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
		if t.Day() == d && int(t.Month()) == mo {
			return &t
		}
		return nil
	}
	for _, layout := range fallbackDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = truncateDay(t)
			return &t
		}
	}
	return nil
}

func stringValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}
