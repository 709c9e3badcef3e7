package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role is the authorization role of an account.
type Role string

const (
	RoleNGO     Role = "NGO"
	RoleCanteen Role = "Canteen"
)

// ParseRole accepts the role in any letter case.
func ParseRole(raw string) (Role, bool) {
	switch {
	case strings.EqualFold(raw, string(RoleNGO)):
		return RoleNGO, true
	case strings.EqualFold(raw, string(RoleCanteen)):
		return RoleCanteen, true
	}
	return "", false
}

// Principal is the authenticated identity behind a request.
type Principal struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// Account represents a registered NGO or canteen.
// The role-specific data lives in Profile, which is either an
// NGOProfile or a CanteenProfile.
type Account struct {
	// ID is the unique identifier of the account.
	ID string `json:"id" db:"id"`

	// Email is the unique, lower-cased login address.
	Email string `json:"email" db:"email"`

	// ContactPerson is the person to talk to at the organization.
	ContactPerson string `json:"contact_person" db:"contact_person"`

	// Phone is the contact phone number.
	Phone string `json:"phone" db:"phone"`

	// Address is the postal address of the organization.
	Address Address `json:"address" db:"address"`

	// Profile holds the role-specific registration data.
	Profile Profile `json:"profile" db:"profile"`

	// PasswordHash stores the hashed representation of the password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Role returns the role implied by the profile variant.
func (a Account) Role() Role {
	if a.Profile == nil {
		return ""
	}
	return a.Profile.Role()
}

// DisplayName is the organization or canteen name.
func (a Account) DisplayName() string {
	switch p := a.Profile.(type) {
	case NGOProfile:
		return p.OrgName
	case CanteenProfile:
		return p.CanteenName
	}
	return ""
}

// Principal returns the identity used to authorize requests made by the account.
func (a Account) Principal() Principal {
	return Principal{ID: a.ID, Role: a.Role()}
}

// Validate checks the base record and the profile.
func (a Account) Validate() error {
	var missing []string
	if strings.TrimSpace(a.Email) == "" {
		missing = append(missing, "email")
	}
	if strings.TrimSpace(a.ContactPerson) == "" {
		missing = append(missing, "contact_person")
	}
	if strings.TrimSpace(a.Phone) == "" {
		missing = append(missing, "phone")
	}
	missing = append(missing, a.Address.missing()...)
	if len(missing) > 0 {
		return &FieldsError{Fields: missing}
	}
	if a.Profile == nil {
		return errors.New("profile is required")
	}
	return a.Profile.Validate()
}

type accountJSON struct {
	ID            string          `json:"id"`
	Email         string          `json:"email"`
	Role          Role            `json:"role"`
	ContactPerson string          `json:"contact_person"`
	Phone         string          `json:"phone"`
	Address       Address         `json:"address"`
	Profile       json.RawMessage `json:"profile"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// MarshalJSON adds the role so the profile variant can be told apart.
func (a Account) MarshalJSON() ([]byte, error) {
	profile := json.RawMessage("null")
	if a.Profile != nil {
		data, err := json.Marshal(a.Profile)
		if err != nil {
			return nil, err
		}
		profile = data
	}
	return json.Marshal(accountJSON{
		ID:            a.ID,
		Email:         a.Email,
		Role:          a.Role(),
		ContactPerson: a.ContactPerson,
		Phone:         a.Phone,
		Address:       a.Address,
		Profile:       profile,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	})
}

func (a *Account) UnmarshalJSON(data []byte) error {
	var raw accountJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = Account{
		ID:            raw.ID,
		Email:         raw.Email,
		ContactPerson: raw.ContactPerson,
		Phone:         raw.Phone,
		Address:       raw.Address,
		CreatedAt:     raw.CreatedAt,
		UpdatedAt:     raw.UpdatedAt,
	}
	if raw.Role == "" {
		return nil
	}
	profile, err := DecodeProfile(raw.Role, raw.Profile)
	if err != nil {
		return err
	}
	a.Profile = profile
	return nil
}

// DecodeProfile rebuilds the profile variant stored for role.
func DecodeProfile(role Role, data []byte) (Profile, error) {
	switch role {
	case RoleNGO:
		var p NGOProfile
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode ngo profile: %w", err)
		}
		return p, nil
	case RoleCanteen:
		var p CanteenProfile
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode canteen profile: %w", err)
		}
		return p, nil
	}
	return nil, fmt.Errorf("unknown role %q", role)
}

// Address is a postal address.
type Address struct {
	Line    string `json:"line" db:"line"`
	City    string `json:"city" db:"city"`
	State   string `json:"state" db:"state"`
	Country string `json:"country" db:"country"`
}

func (a Address) missing() []string {
	var missing []string
	if strings.TrimSpace(a.Line) == "" {
		missing = append(missing, "address")
	}
	if strings.TrimSpace(a.City) == "" {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(a.State) == "" {
		missing = append(missing, "state")
	}
	if strings.TrimSpace(a.Country) == "" {
		missing = append(missing, "country")
	}
	return missing
}

// Profile is implemented by NGOProfile and CanteenProfile only.
type Profile interface {
	Role() Role
	Validate() error
	isProfile()
}

// NGOProfile carries the registration data of a redistribution agent.
type NGOProfile struct {
	OrgName   string `json:"org_name"`
	RegNumber string `json:"reg_number"`
	About     string `json:"about,omitempty"`
}

func (NGOProfile) Role() Role { return RoleNGO }

func (NGOProfile) isProfile() {}

func (p NGOProfile) Validate() error {
	var missing []string
	if strings.TrimSpace(p.OrgName) == "" {
		missing = append(missing, "org_name")
	}
	if strings.TrimSpace(p.RegNumber) == "" {
		missing = append(missing, "reg_number")
	}
	if len(missing) > 0 {
		return &FieldsError{Fields: missing}
	}
	return nil
}

// CanteenProfile carries the registration data of a food producer.
type CanteenProfile struct {
	CanteenName      string `json:"canteen_name"`
	SurplusCapacity  int    `json:"surplus_capacity"`
	OperationalHours string `json:"operational_hours"`
}

func (CanteenProfile) Role() Role { return RoleCanteen }

func (CanteenProfile) isProfile() {}

func (p CanteenProfile) Validate() error {
	var missing []string
	if strings.TrimSpace(p.CanteenName) == "" {
		missing = append(missing, "canteen_name")
	}
	if p.SurplusCapacity <= 0 {
		missing = append(missing, "surplus_capacity")
	}
	if strings.TrimSpace(p.OperationalHours) == "" {
		missing = append(missing, "operational_hours")
	}
	if len(missing) > 0 {
		return &FieldsError{Fields: missing}
	}
	return nil
}

// FieldsError lists required fields that are missing or invalid.
type FieldsError struct {
	Fields []string
}

func (e *FieldsError) Error() string {
	return "missing or invalid fields: " + strings.Join(e.Fields, ", ")
}
