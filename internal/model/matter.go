package model

import "time"

// Matter is a legal case record. Its attributes live in field values.
type Matter struct {
	ID        string    `json:"id"`
	BoardID   string    `json:"boardId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Transition is one immutable row of the status-transition log.
type Transition struct {
	ID             string    `json:"id"`
	MatterID       string    `json:"matterId"`
	StatusFieldID  string    `json:"statusFieldId"`
	FromStatusID   *string   `json:"fromStatusId"`
	ToStatusID     string    `json:"toStatusId"`
	TransitionedBy *int64    `json:"transitionedBy"`
	TransitionedAt time.Time `json:"transitionedAt"`
}

// CycleStamps are the two timestamps the cycle-time calculator needs.
type CycleStamps struct {
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// FieldSlots is the storage shape of one value row. At most one slot is
// set, matching the field's declared type; all nil is an explicit null.
type FieldSlots struct {
	Text     *string
	Number   *float64
	Date     *time.Time
	Boolean  *bool
	Currency []byte
	User     *int64
	Select   *string
	Status   *string
}

// FieldUpdate is a validated write against one (matter, field) pair.
type FieldUpdate struct {
	MatterID  string
	FieldID   string
	FieldType FieldType
	Slots     FieldSlots
	Actor     *int64
	At        time.Time
}
