package domain

// Account is an authenticatable identity. Super accounts carry no tenant and
// operate across the whole platform.
type Account struct {
	ID           string
	Email        string
	Name         string
	Mobile       string
	PasswordHash string
	Active       bool
	Super        bool
	TenantID     string // empty for super accounts
	LastModuleID string
	Timezone     string
}

// Elevated reports whether the account operates outside any tenant scope.
func (a *Account) Elevated() bool {
	return a.Super || a.TenantID == ""
}

// Grant binds an account to a role within one organization of its tenant.
type Grant struct {
	AccountID      string
	TenantID       string
	OrganizationID string
	RoleID         string
	Timezone       string
}

// Context is the resolved working scope stamped into an access token.
type Context struct {
	TenantID       string
	OrganizationID string
	RoleID         string
	YearID         string
	ModuleID       string
	Timezone       string
}
