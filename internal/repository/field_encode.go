package repository

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-legal-matters/internal/common/errors"
	"github.com/pesio-ai/be-legal-matters/internal/model"
)

// encodeFunc converts a decoded request value into the storage slot for
// its type. value is never nil.
type encodeFunc func(value any, slots *model.FieldSlots) error

var encoders = map[model.FieldType]encodeFunc{
	model.FieldTypeText:     encodeText,
	model.FieldTypeNumber:   encodeNumber,
	model.FieldTypeSelect:   encodeSelect,
	model.FieldTypeDate:     encodeDate,
	model.FieldTypeCurrency: encodeCurrency,
	model.FieldTypeBoolean:  encodeBoolean,
	model.FieldTypeStatus:   encodeStatus,
	model.FieldTypeUser:     encodeUser,
}

// EncodeValue converts value into FieldSlots with only the slot for ft
// set. A nil value stores an explicit null.
func EncodeValue(ft model.FieldType, value any) (model.FieldSlots, error) {
	encode, ok := encoders[ft]
	if !ok {
		return model.FieldSlots{}, errors.UnsupportedType(string(ft))
	}

	var slots model.FieldSlots
	if value == nil {
		return slots, nil
	}
	if err := encode(value, &slots); err != nil {
		return model.FieldSlots{}, err
	}
	return slots, nil
}

func invalidValue(format string, args ...any) error {
	return errors.InvalidInput("value", fmt.Sprintf(format, args...))
}

func encodeText(value any, slots *model.FieldSlots) error {
	s, ok := value.(string)
	if !ok {
		return invalidValue("text field expects a string, got %T", value)
	}
	slots.Text = &s
	return nil
}

func encodeNumber(value any, slots *model.FieldSlots) error {
	n, err := toFloat(value)
	if err != nil {
		return invalidValue("number field expects a number: %v", err)
	}
	slots.Number = &n
	return nil
}

func toFloat(value any) (float64, error) {
	var n float64
	switch v := value.(type) {
	case float64:
		n = v
	case float32:
		n = float64(v)
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, err
		}
		n = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot parse %q", v)
		}
		n = f
	default:
		return 0, fmt.Errorf("unexpected %T", value)
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("not a finite number")
	}
	return n, nil
}

func encodeDate(value any, slots *model.FieldSlots) error {
	var t time.Time
	switch v := value.(type) {
	case time.Time:
		t = v
	case string:
		parsed, err := parseDate(strings.TrimSpace(v))
		if err != nil {
			return invalidValue("date field expects RFC 3339 or YYYY-MM-DD, got %q", v)
		}
		t = parsed
	default:
		return invalidValue("date field expects a string, got %T", value)
	}
	t = t.UTC()
	slots.Date = &t
	return nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

func encodeBoolean(value any, slots *model.FieldSlots) error {
	b, ok := value.(bool)
	if !ok {
		return invalidValue("boolean field expects true or false, got %T", value)
	}
	slots.Boolean = &b
	return nil
}

func encodeCurrency(value any, slots *model.FieldSlots) error {
	var c model.Currency
	switch v := value.(type) {
	case model.Currency:
		c = v
	case map[string]any:
		amount, ok := v["amount"]
		if !ok {
			return invalidValue("currency field requires an amount")
		}
		n, err := toFloat(amount)
		if err != nil {
			return invalidValue("currency amount: %v", err)
		}
		code, _ := v["currency"].(string)
		c = model.Currency{Amount: n, Currency: code}
	default:
		return invalidValue("currency field expects {amount, currency}, got %T", value)
	}

	c.Currency = strings.ToUpper(strings.TrimSpace(c.Currency))
	if len(c.Currency) != 3 {
		return invalidValue("currency code must be three letters")
	}

	raw, err := json.Marshal(c)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to encode currency value")
	}
	slots.Currency = raw
	return nil
}

func encodeUser(value any, slots *model.FieldSlots) error {
	if m, ok := value.(map[string]any); ok {
		value = m["id"]
	}
	var id int64
	switch v := value.(type) {
	case int64:
		id = v
	case int:
		id = int64(v)
	case float64:
		if v != math.Trunc(v) {
			return invalidValue("user id must be an integer")
		}
		id = int64(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return invalidValue("user id must be an integer")
		}
		id = n
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return invalidValue("user id must be an integer")
		}
		id = n
	default:
		return invalidValue("user field expects a user id, got %T", value)
	}
	if id <= 0 {
		return invalidValue("user id must be positive")
	}
	slots.User = &id
	return nil
}

func encodeSelect(value any, slots *model.FieldSlots) error {
	id, err := optionID(value, "")
	if err != nil {
		return err
	}
	slots.Select = &id
	return nil
}

func encodeStatus(value any, slots *model.FieldSlots) error {
	id, err := optionID(value, "statusId")
	if err != nil {
		return err
	}
	slots.Status = &id
	return nil
}

// optionID accepts an option id string, or an object carrying it under key.
func optionID(value any, key string) (string, error) {
	if m, ok := value.(map[string]any); ok && key != "" {
		value = m[key]
	}
	if ref, ok := value.(model.StatusRef); ok {
		value = ref.StatusID
	}
	s, ok := value.(string)
	if !ok {
		return "", invalidValue("expected an option id, got %T", value)
	}
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", invalidValue("option id %q is not a valid UUID", s)
	}
	return id.String(), nil
}
