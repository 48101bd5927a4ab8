package auth

type PrincipalKind int

const (
	PrincipalUser PrincipalKind = iota + 1
	PrincipalProjectKey
)

// Principal is the authenticated caller of a request.
type Principal struct {
	Kind PrincipalKind

	// Set for PrincipalUser.
	UserID uint
	Name   string
	Email  string

	// Set for PrincipalProjectKey.
	KeyID     uint
	ProjectID uint
}

// CanRead reports whether the credential may read monitor data.
// Project keys are ingestion-only.
func (p Principal) CanRead() bool {
	return p.Kind == PrincipalUser
}
