// Package inspection implements the per-scan condition inspection: a mutable
// draft, all-or-nothing field validation, and the state machine that owns the
// one-draft-at-a-time discipline.
package inspection

import (
	"fmt"
	"strings"
	"sync"

	"returnscan/scan/inventory"
)

// Condition classifies the inspection outcome and drives mandatory-field rules.
const (
	ConditionGreen  = "GREEN"
	ConditionOrange = "ORANGE"
	ConditionRed    = "RED"
)

// Discrepancy reasons explain a shortfall between required and returned quantity.
const (
	DiscrepancyBroken = "BROKEN"
	DiscrepancyLost   = "LOST"
	DiscrepancyOther  = "OTHER"
)

// Photo is one captured image payload attached to a draft.
type Photo struct {
	Blob []byte
	MIME string
	Name string
}

// Draft is the mutable, session-scoped inspection being edited. At most one
// instance is alive at a time; it is never persisted mid-edit.
type Draft struct {
	QRCode           string
	AssetID          int64
	AssetName        string
	TrackingMethod   string
	RequiredQuantity int64
	ScannedQuantity  int64 // snapshot at open time

	Condition          string
	Notes              string
	Photos             []Photo
	RefurbDaysEstimate int64 // 0 = unset
	DiscrepancyReason  string
	Quantity           int64 // 0 = unset; required for BATCH

	IdempotencyKey string
}

// ConfirmedQuantity is the amount a successful submission adds to the scanned
// count: always 1 for INDIVIDUAL, the user-entered value for BATCH.
func (d *Draft) ConfirmedQuantity() int64 {
	if d.TrackingMethod == inventory.TrackingBatch {
		return d.Quantity
	}
	return 1
}

// FieldError is a field-specific validation message.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// Validate applies the submission rules. All rules are checked per attempt;
// any failure blocks submission entirely.
func Validate(d *Draft) []FieldError {
	var errs []FieldError
	switch d.Condition {
	case ConditionGreen, ConditionOrange, ConditionRed:
	case "":
		errs = append(errs, FieldError{Field: "condition", Message: "condition is required"})
	default:
		errs = append(errs, FieldError{Field: "condition", Message: "condition must be GREEN, ORANGE or RED"})
	}

	if d.Condition == ConditionOrange || d.Condition == ConditionRed {
		if strings.TrimSpace(d.Notes) == "" {
			errs = append(errs, FieldError{Field: "notes", Message: "notes are required for ORANGE or RED condition"})
		}
		if d.RefurbDaysEstimate < 1 {
			errs = append(errs, FieldError{Field: "refurb_days_estimate", Message: "refurb days estimate must be 1 or more"})
		}
	}

	switch d.DiscrepancyReason {
	case "", DiscrepancyBroken, DiscrepancyLost, DiscrepancyOther:
	default:
		errs = append(errs, FieldError{Field: "discrepancy_reason", Message: "discrepancy reason must be BROKEN, LOST or OTHER"})
	}

	if d.TrackingMethod == inventory.TrackingBatch {
		remaining := d.RequiredQuantity - d.ScannedQuantity
		if d.Quantity < 1 {
			errs = append(errs, FieldError{Field: "quantity", Message: "quantity must be at least 1"})
		} else if d.Quantity > remaining {
			errs = append(errs, FieldError{Field: "quantity", Message: fmt.Sprintf("quantity cannot exceed the %d still expected", remaining)})
		}
	}
	return errs
}

// State of the inspection machine.
type State string

const (
	StateIdle               State = "idle"
	StateOpen               State = "open"
	StateValidating         State = "validating"
	StateSubmitting         State = "submitting"
	StateClosed             State = "closed"
	StateReopenedWithErrors State = "reopened_with_errors"
)

// Machine owns the single in-flight draft. Only one draft may be open or
// submitting at a time; callers coordinate pausing the code source around it.
type Machine struct {
	mu     sync.Mutex
	state  State
	draft  *Draft
	fields []FieldError
	reason string
}

func NewMachine() *Machine {
	return &Machine{state: StateIdle}
}

// State returns the current machine state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Open creates a draft for a scannable item. It fails if a draft is already
// alive.
func (m *Machine) Open(item inventory.Item, idempotencyKey string) (*Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case StateIdle, StateClosed:
	default:
		return nil, fmt.Errorf("an inspection is already in progress")
	}
	m.draft = &Draft{
		QRCode:           item.QRCode,
		AssetID:          item.AssetID,
		AssetName:        item.AssetName,
		TrackingMethod:   item.TrackingMethod,
		RequiredQuantity: item.RequiredQuantity,
		ScannedQuantity:  item.ScannedQuantity,
		IdempotencyKey:   idempotencyKey,
	}
	m.state = StateOpen
	m.fields = nil
	m.reason = ""
	return m.draft, nil
}

// Edit mutates the open draft. It fails while submitting or when no draft is
// alive.
func (m *Machine) Edit(fn func(*Draft)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.editableLocked() {
		return fmt.Errorf("no editable inspection draft")
	}
	fn(m.draft)
	return nil
}

// Draft returns a copy of the live draft for display, or nil.
func (m *Machine) Draft() *Draft {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.draft == nil {
		return nil
	}
	cp := *m.draft
	return &cp
}

// FieldErrors returns the messages from the last failed validation attempt.
func (m *Machine) FieldErrors() []FieldError {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]FieldError(nil), m.fields...)
}

// Reason returns the server-reported reason from the last failed submission.
func (m *Machine) Reason() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reason
}

// BeginSubmit validates the draft and, if every rule passes, moves to
// Submitting and returns the draft to send. On any failed rule the machine
// stays open and the field messages are returned.
func (m *Machine) BeginSubmit() (*Draft, []FieldError) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.editableLocked() {
		return nil, []FieldError{{Field: "draft", Message: "no inspection draft to submit"}}
	}
	m.state = StateValidating
	if errs := Validate(m.draft); len(errs) > 0 {
		m.state = StateOpen
		m.fields = errs
		return nil, errs
	}
	m.fields = nil
	m.state = StateSubmitting
	cp := *m.draft
	return &cp, nil
}

// FinishSubmit resolves the Submitting state. On success the draft is
// discarded and the machine closes; on failure the draft stays intact and the
// machine reopens with the server-reported reason.
func (m *Machine) FinishSubmit(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateSubmitting {
		return
	}
	if err != nil {
		m.state = StateReopenedWithErrors
		m.reason = err.Error()
		return
	}
	m.draft = nil
	m.reason = ""
	m.state = StateClosed
}

// Cancel discards the draft without submitting. A draft in Submitting cannot
// be cancelled; it must resolve first.
func (m *Machine) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.editableLocked() {
		return fmt.Errorf("no cancellable inspection draft")
	}
	m.draft = nil
	m.fields = nil
	m.reason = ""
	m.state = StateClosed
	return nil
}

func (m *Machine) editableLocked() bool {
	return (m.state == StateOpen || m.state == StateReopenedWithErrors || m.state == StateValidating) && m.draft != nil
}
