package models

import "time"

// Account is a tenant-level grouping of users bound to exactly one plan.
type Account struct {
	ID   string
	Name string
	Plan *Plan
}

// Plan is a subscription tier granting Scopes until ExpiryDate.
type Plan struct {
	ID         string
	Name       string
	ExpiryDate time.Time
	Scopes     []Scope
}

// Scope is a named permission unit.
type Scope struct {
	ID    string
	Scope string
}

// ActiveAt reports whether the plan is still valid at now (strictly before
// expiry).
func (p *Plan) ActiveAt(now time.Time) bool {
	return p != nil && p.ExpiryDate.After(now)
}
