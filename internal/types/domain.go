package types

import (
	"time"
)

// Account is the tenant record created on first authenticated use.
// There is exactly one Account per external identity id.
type Account struct {
	ID               string    `json:"id" db:"id"`
	IdentityID       string    `json:"identity_id" db:"identity_id"`
	Email            string    `json:"email" db:"email"`
	DisplayName      string    `json:"display_name,omitempty" db:"display_name"`
	Plan             PlanName  `json:"plan" db:"plan"`
	StripeCustomerID string    `json:"-" db:"stripe_customer_id"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// APIKey is a programmatic credential bound to an account.
// The plaintext token is never stored; TokenHash is its SHA-256 hex digest.
type APIKey struct {
	ID          string     `json:"id" db:"id"`
	AccountID   string     `json:"account_id" db:"account_id"`
	TokenHash   string     `json:"-" db:"token_hash"`
	TokenPrefix string     `json:"prefix" db:"token_prefix"`
	Name        string     `json:"name" db:"name"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// Form is a submission endpoint owned by exactly one account.
type Form struct {
	ID         string       `json:"id" db:"id"`
	AccountID  string       `json:"account_id" db:"account_id"`
	EndpointID string       `json:"endpoint_id" db:"endpoint_id"`
	Name       string       `json:"name" db:"name"`
	Settings   FormSettings `json:"settings" db:"settings"`
	CreatedAt  time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at" db:"updated_at"`
}

// FormPatch carries the optional fields of a form update.
// Nil fields are left untouched.
type FormPatch struct {
	Name     *string       `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Settings *FormSettings `json:"settings,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p FormPatch) IsEmpty() bool {
	return p.Name == nil && p.Settings == nil
}

// Submission is a single payload received on a form's hosted endpoint.
type Submission struct {
	ID        string         `json:"id" db:"id"`
	FormID    string         `json:"form_id" db:"form_id"`
	Data      SubmissionData `json:"data" db:"data"`
	IPAddress string         `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent string         `json:"user_agent,omitempty" db:"user_agent"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}

// Insight is an AI-generated summary attached to a form.
type Insight struct {
	ID        string    `json:"id" db:"id"`
	FormID    string    `json:"form_id" db:"form_id"`
	Summary   string    `json:"summary" db:"summary"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// PlanLimits is the immutable capability set of a plan.
type PlanLimits struct {
	Plan                   PlanName `json:"plan"`
	Label                  string   `json:"label"`
	PriceCents             int      `json:"price_cents"`
	MaxForms               Ceiling  `json:"max_forms"`
	MaxSubmissionsPerMonth Ceiling  `json:"max_submissions_per_month"`
	AIInsights             bool     `json:"ai_insights"`
	Webhooks               bool     `json:"webhooks"`
	TeamWorkspace          bool     `json:"team_workspace"`
}

// UsageSummary aggregates an account's consumption against its plan.
type UsageSummary struct {
	Plan                 PlanName   `json:"plan"`
	Limits               PlanLimits `json:"limits"`
	Forms                int        `json:"forms"`
	SubmissionsThisMonth int        `json:"submissions_this_month"`
	Insights             int        `json:"insights"`
	PeriodStart          time.Time  `json:"period_start"`
}

// VerificationResult is the outcome of a captcha challenge check.
// Success is false whenever the outcome is anything other than a confirmed pass.
type VerificationResult struct {
	Success     bool       `json:"success"`
	ErrorCodes  []string   `json:"error_codes,omitempty"`
	ChallengeTS *time.Time `json:"challenge_ts,omitempty"`
	Hostname    string     `json:"hostname,omitempty"`
	// Kind classifies non-success outcomes; empty on success.
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}

// Verification failure kinds.
const (
	VerificationKindConfiguration = "configuration"
	VerificationKindNetwork       = "network"
	VerificationKindRejected      = "rejected"
)

// InsightJob is the queue message requesting insight generation for a form.
type InsightJob struct {
	FormID      string    `json:"form_id"`
	AccountID   string    `json:"account_id"`
	RequestedAt time.Time `json:"requested_at"`
	RequestID   string    `json:"request_id,omitempty"`
}

// Identity is the verified external user behind a session token.
type Identity struct {
	ID          string `json:"id"`
	Email       string `json:"primary_email"`
	DisplayName string `json:"display_name"`
}

// RedirectURLs are the browser destinations after a hosted checkout.
type RedirectURLs struct {
	Success string `json:"success_url" validate:"required,url"`
	Cancel  string `json:"cancel_url" validate:"required,url"`
}
