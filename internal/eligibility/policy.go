// Package eligibility implements the recent-interaction business rule that
// excludes contact-fatigued clients from top-opportunity lists.
package eligibility

import (
	"context"
	"time"
)

// Indicators are the five per-client interaction flags evaluated against the
// configured windows. Any true flag makes the client ineligible.
type Indicators struct {
	EmailedRecently   bool `json:"emailed_recently"`
	CalledRecently    bool `json:"called_recently"`
	NewPolicyRecently bool `json:"new_policy_recently"`
	OpenComplaint     bool `json:"open_complaint"`
	RecentClaim       bool `json:"recent_claim"`
}

// Any reports whether at least one indicator is set.
func (i Indicators) Any() bool {
	return i.EmailedRecently || i.CalledRecently || i.NewPolicyRecently ||
		i.OpenComplaint || i.RecentClaim
}

// Windows holds the look-back spans for each indicator. They are
// configuration, not control flow: callers load them from config and pass
// them to the indicator source.
type Windows struct {
	EmailBusinessDays int `yaml:"email_business_days" mapstructure:"email_business_days"`
	PhoneDays         int `yaml:"phone_days" mapstructure:"phone_days"`
	NewPolicyDays     int `yaml:"new_policy_days" mapstructure:"new_policy_days"`
	ClaimDays         int `yaml:"claim_days" mapstructure:"claim_days"`
}

// DefaultWindows returns the standard contact-fatigue windows.
func DefaultWindows() Windows {
	return Windows{
		EmailBusinessDays: 5,
		PhoneDays:         10,
		NewPolicyDays:     30,
		ClaimDays:         60,
	}
}

// Policy decides eligibility from a client's indicators at a reference time.
type Policy interface {
	Eligible(ind Indicators) bool
	Windows() Windows
}

// WindowPolicy is the standard policy: a client is eligible iff none of the
// five indicators is set.
type WindowPolicy struct {
	windows Windows
}

// NewWindowPolicy creates a WindowPolicy with the given windows.
func NewWindowPolicy(w Windows) *WindowPolicy {
	return &WindowPolicy{windows: w}
}

func (p *WindowPolicy) Eligible(ind Indicators) bool {
	return !ind.Any()
}

func (p *WindowPolicy) Windows() Windows {
	return p.windows
}

// Source fetches interaction indicators for a batch of client ids, evaluated
// against the windows at the reference time. Implementations live in the
// store layer; the engine only sees this interface.
type Source interface {
	FetchIndicators(ctx context.Context, ids []string, now time.Time, w Windows) (map[string]Indicators, error)
}
