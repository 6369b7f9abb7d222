package profile

import (
	"bytes"
	"encoding/json"
	"time"
)

// DefaultTimezone is used for users without a profile.
const DefaultTimezone = "Europe/Warsaw"

// DateLayout is the wire format of the date of birth.
const DateLayout = "2006-01-02"

// Profile maps to the profiles table. It is keyed by the owner identity.
type Profile struct {
	UserID          string
	FirstName       *string
	LastName        *string
	DOB             *time.Time
	Sex             *string
	Weight          *float64
	Phone           *string
	Timezone        string
	ReminderEnabled bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Record is the public view of a profile.
type Record struct {
	FirstName       *string   `json:"first_name"`
	LastName        *string   `json:"last_name"`
	DOB             *string   `json:"dob"`
	Sex             *string   `json:"sex"`
	Weight          *float64  `json:"weight"`
	Phone           *string   `json:"phone"`
	Timezone        string    `json:"timezone"`
	ReminderEnabled bool      `json:"reminder_enabled"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (p *Profile) Record() Record {
	r := Record{
		FirstName:       p.FirstName,
		LastName:        p.LastName,
		Sex:             p.Sex,
		Weight:          p.Weight,
		Phone:           p.Phone,
		Timezone:        p.Timezone,
		ReminderEnabled: p.ReminderEnabled,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
	if p.DOB != nil {
		d := p.DOB.Format(DateLayout)
		r.DOB = &d
	}
	return r
}

// CreateInput is a validated new profile.
type CreateInput struct {
	FirstName *string
	LastName  *string
	DOB       *time.Time
	Sex       *string
	Weight    *float64
	Phone     *string
	Timezone  string
}

// Optional distinguishes an absent JSON key from an explicit null.
type Optional[T any] struct {
	Set   bool
	Value *T
}

func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// UpdateInput carries the fields present in a partial update. Clearable
// fields use Optional; timezone and the reminder flag can only be replaced.
type UpdateInput struct {
	FirstName       Optional[string]
	LastName        Optional[string]
	DOB             Optional[time.Time]
	Sex             Optional[string]
	Weight          Optional[float64]
	Phone           Optional[string]
	Timezone        *string
	ReminderEnabled *bool
}

func (in UpdateInput) Empty() bool {
	return !in.FirstName.Set && !in.LastName.Set && !in.DOB.Set && !in.Sex.Set &&
		!in.Weight.Set && !in.Phone.Set && in.Timezone == nil && in.ReminderEnabled == nil
}

func (in UpdateInput) applyTo(p *Profile) {
	if in.FirstName.Set {
		p.FirstName = in.FirstName.Value
	}
	if in.LastName.Set {
		p.LastName = in.LastName.Value
	}
	if in.DOB.Set {
		p.DOB = in.DOB.Value
	}
	if in.Sex.Set {
		p.Sex = in.Sex.Value
	}
	if in.Weight.Set {
		p.Weight = in.Weight.Value
	}
	if in.Phone.Set {
		p.Phone = in.Phone.Value
	}
	if in.Timezone != nil {
		p.Timezone = *in.Timezone
	}
	if in.ReminderEnabled != nil {
		p.ReminderEnabled = *in.ReminderEnabled
	}
}
