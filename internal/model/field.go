package model

import "time"

// FieldType is the declared type of a field definition.
type FieldType string

const (
	FieldTypeText     FieldType = "text"
	FieldTypeNumber   FieldType = "number"
	FieldTypeSelect   FieldType = "select"
	FieldTypeDate     FieldType = "date"
	FieldTypeCurrency FieldType = "currency"
	FieldTypeBoolean  FieldType = "boolean"
	FieldTypeStatus   FieldType = "status"
	FieldTypeUser     FieldType = "user"
)

// FieldTypes lists every supported type in a fixed order.
var FieldTypes = []FieldType{
	FieldTypeText,
	FieldTypeNumber,
	FieldTypeSelect,
	FieldTypeDate,
	FieldTypeCurrency,
	FieldTypeBoolean,
	FieldTypeStatus,
	FieldTypeUser,
}

// Valid reports whether t is one of the supported types.
func (t FieldType) Valid() bool {
	for _, ft := range FieldTypes {
		if ft == t {
			return true
		}
	}
	return false
}

// FieldDefinition is a named, typed attribute a matter may carry.
type FieldDefinition struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Type      FieldType  `json:"type"`
	Sequence  int        `json:"sequence"`
	DeletedAt *time.Time `json:"-"`
}

// FieldHandle is a resolved field: the catalog turns a name into one of
// these once and everything downstream works on the handle.
type FieldHandle struct {
	ID   string
	Name string
	Type FieldType
}

// Handle returns the definition's handle.
func (d *FieldDefinition) Handle() FieldHandle {
	return FieldHandle{ID: d.ID, Name: d.Name, Type: d.Type}
}

// Currency is the structured value of a currency field.
type Currency struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// UserRef is the structured value of a user field.
type UserRef struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// StatusRef is the structured value of a status field. GroupName feeds
// the SLA calculation.
type StatusRef struct {
	StatusID  string `json:"statusId"`
	GroupName string `json:"groupName"`
}

// FieldEntry is one materialized field value.
type FieldEntry struct {
	FieldID      string    `json:"fieldId"`
	FieldType    FieldType `json:"fieldType"`
	Value        any       `json:"value"`
	DisplayValue string    `json:"displayValue"`
	// Sequence is the definition's display sequence.
	Sequence int `json:"-"`
}

// ListValue is the compact value shown in list rows: scalars stay raw,
// structured and reference values collapse to their display string.
func (e FieldEntry) ListValue() any {
	if e.Value == nil {
		return nil
	}
	switch e.FieldType {
	case FieldTypeText, FieldTypeNumber, FieldTypeBoolean, FieldTypeDate:
		return e.Value
	default:
		return e.DisplayValue
	}
}

// FieldMap is a matter's materialized fields keyed by field name.
type FieldMap map[string]FieldEntry

// FieldMaps is keyed by matter id.
type FieldMaps map[string]FieldMap

// CurrentStatusGroup returns the group name of the matter's status
// field, choosing the lowest-sequence status field when several exist.
func (m FieldMap) CurrentStatusGroup() string {
	group := ""
	best := 0
	found := false
	for _, e := range m {
		if e.FieldType != FieldTypeStatus {
			continue
		}
		ref, ok := e.Value.(StatusRef)
		if !ok {
			continue
		}
		if !found || e.Sequence < best {
			group, best, found = ref.GroupName, e.Sequence, true
		}
	}
	return group
}
