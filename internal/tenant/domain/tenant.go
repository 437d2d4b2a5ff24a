package domain

import "time"

// Tenant is a licensed customer of the platform.
type Tenant struct {
	ID             string
	Name           string
	LicenseExpires time.Time
}

// Licensed reports whether the tenant's license covers the given instant.
func (t *Tenant) Licensed(at time.Time) bool {
	return t.LicenseExpires.After(at)
}
