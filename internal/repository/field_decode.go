package repository

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/pesio-ai/be-legal-matters/internal/model"
)

// Boolean display glyphs.
const (
	GlyphTrue  = "✓"
	GlyphFalse = "✗"
)

var displayLocale = language.English

// valueRow is one joined value row as read by Materialize.
type valueRow struct {
	MatterID  string
	FieldID   string
	FieldName string
	FieldType model.FieldType
	Sequence  int

	Text     *string
	String   *string
	Number   *float64
	Date     *time.Time
	Boolean  *bool
	Currency []byte

	UserID        *int64
	UserEmail     *string
	UserFirstName *string
	UserLastName  *string

	SelectID    *string
	SelectLabel *string

	StatusID    *string
	StatusLabel *string
	StatusGroup *string
}

// decodeFunc extracts the typed value and its display string. ok is false
// when the row's slot for the type is empty.
type decodeFunc func(r *valueRow) (value any, display string, ok bool)

var decoders = map[model.FieldType]decodeFunc{
	model.FieldTypeText:     decodeText,
	model.FieldTypeNumber:   decodeNumber,
	model.FieldTypeSelect:   decodeSelect,
	model.FieldTypeDate:     decodeDate,
	model.FieldTypeCurrency: decodeCurrency,
	model.FieldTypeBoolean:  decodeBoolean,
	model.FieldTypeStatus:   decodeStatus,
	model.FieldTypeUser:     decodeUser,
}

// decodeRow turns a value row into a field entry. A row whose slot is
// empty yields an entry with a nil value; a row of an unknown type
// yields nothing.
func decodeRow(r *valueRow) (model.FieldEntry, bool) {
	decode, known := decoders[r.FieldType]
	if !known {
		return model.FieldEntry{}, false
	}

	entry := model.FieldEntry{
		FieldID:   r.FieldID,
		FieldType: r.FieldType,
		Sequence:  r.Sequence,
	}
	if value, display, ok := decode(r); ok {
		entry.Value = value
		entry.DisplayValue = display
	}
	return entry, true
}

func decodeText(r *valueRow) (any, string, bool) {
	for _, s := range []*string{r.Text, r.String} {
		if s != nil {
			return *s, *s, true
		}
	}
	return nil, "", false
}

func decodeNumber(r *valueRow) (any, string, bool) {
	if r.Number == nil {
		return nil, "", false
	}
	return *r.Number, FormatNumber(*r.Number), true
}

// FormatNumber renders n with locale digit grouping.
func FormatNumber(n float64) string {
	p := message.NewPrinter(displayLocale)
	return p.Sprint(number.Decimal(n))
}

func decodeSelect(r *valueRow) (any, string, bool) {
	if r.SelectID == nil {
		return nil, "", false
	}
	return *r.SelectID, deref(r.SelectLabel), true
}

func decodeDate(r *valueRow) (any, string, bool) {
	if r.Date == nil {
		return nil, "", false
	}
	d := r.Date.UTC()
	return d, d.Format(time.RFC3339), true
}

func decodeCurrency(r *valueRow) (any, string, bool) {
	if len(r.Currency) == 0 || string(r.Currency) == "null" {
		return nil, "", false
	}
	var c model.Currency
	if err := json.Unmarshal(r.Currency, &c); err != nil {
		return nil, "", false
	}
	return c, FormatCurrency(c), true
}

// FormatCurrency renders "amount CODE".
func FormatCurrency(c model.Currency) string {
	amount := strconv.FormatFloat(c.Amount, 'f', -1, 64)
	if c.Currency == "" {
		return amount
	}
	return amount + " " + c.Currency
}

func decodeBoolean(r *valueRow) (any, string, bool) {
	if r.Boolean == nil {
		return nil, "", false
	}
	if *r.Boolean {
		return true, GlyphTrue, true
	}
	return false, GlyphFalse, true
}

func decodeStatus(r *valueRow) (any, string, bool) {
	if r.StatusID == nil {
		return nil, "", false
	}
	ref := model.StatusRef{StatusID: *r.StatusID, GroupName: deref(r.StatusGroup)}
	return ref, deref(r.StatusLabel), true
}

func decodeUser(r *valueRow) (any, string, bool) {
	if r.UserID == nil {
		return nil, "", false
	}
	u := model.UserRef{
		ID:        *r.UserID,
		Email:     deref(r.UserEmail),
		FirstName: deref(r.UserFirstName),
		LastName:  deref(r.UserLastName),
	}
	return u, strings.TrimSpace(u.FirstName + " " + u.LastName), true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
