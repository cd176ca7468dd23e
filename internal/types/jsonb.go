package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

var (
	_ sql.Scanner   = (*FormSettings)(nil)
	_ driver.Valuer = FormSettings{}
	_ sql.Scanner   = (*SubmissionData)(nil)
	_ driver.Valuer = SubmissionData(nil)
)

// scanJSONB scans a JSONB database value into dest.
// Drivers hand back either []byte or string depending on the protocol mode.
func scanJSONB(dest any, value any) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("jsonb: unsupported scan type %T", value)
	}
	return json.Unmarshal(data, dest)
}

func valueJSONB(v any) (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// FormSettings is the public-facing configuration of a form, stored as JSONB.
// Unknown keys written through the settings patch endpoint are preserved in Extra.
type FormSettings struct {
	RedirectURL       string         `json:"redirect_url,omitempty" validate:"omitempty,url"`
	AllowedOrigins    []string       `json:"allowed_origins,omitempty" validate:"omitempty,dive,url"`
	CaptchaRequired   bool           `json:"captcha_required"`
	WebhookURL        string         `json:"webhook_url,omitempty" validate:"omitempty,url"`
	NotificationEmail string         `json:"notification_email,omitempty" validate:"omitempty,email"`
	HoneypotField     string         `json:"honeypot_field,omitempty" validate:"omitempty,max=64"`
	Extra             map[string]any `json:"-"`
}

var formSettingsKeys = map[string]struct{}{
	"redirect_url":       {},
	"allowed_origins":    {},
	"captcha_required":   {},
	"webhook_url":        {},
	"notification_email": {},
	"honeypot_field":     {},
}

// MarshalJSON flattens Extra alongside the known keys.
func (s FormSettings) MarshalJSON() ([]byte, error) {
	type alias FormSettings
	known, err := json.Marshal(alias(s))
	if err != nil {
		return nil, err
	}
	if len(s.Extra) == 0 {
		return known, nil
	}
	merged := make(map[string]any, len(s.Extra)+len(formSettingsKeys))
	for k, v := range s.Extra {
		merged[k] = v
	}
	var fields map[string]any
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes known keys into fields and keeps the rest in Extra.
func (s *FormSettings) UnmarshalJSON(data []byte) error {
	type alias FormSettings
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k := range formSettingsKeys {
		delete(raw, k)
	}
	*s = FormSettings(a)
	if len(raw) > 0 {
		s.Extra = raw
	}
	return nil
}

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (s *FormSettings) Scan(value any) error {
	return scanJSONB(s, value)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (s FormSettings) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// AllowsOrigin reports whether origin may submit to the form.
// An empty allow-list admits every origin.
func (s FormSettings) AllowsOrigin(origin string) bool {
	if len(s.AllowedOrigins) == 0 || origin == "" {
		return true
	}
	for _, o := range s.AllowedOrigins {
		if o == origin || o == "*" {
			return true
		}
	}
	return false
}

// SubmissionData is the free-form payload of a submission.
type SubmissionData map[string]any

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (d *SubmissionData) Scan(value any) error {
	return scanJSONB(d, value)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (d SubmissionData) Value() (driver.Value, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return valueJSONB(map[string]any(d))
}
