package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	// RoleCaller may place calls and run the generation pipeline.
	RoleCaller = "caller"
	// RoleViewer may read call status and listings.
	RoleViewer = "viewer"
	RoleAdmin  = "admin"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

// Known reports whether role is one of the roles above.
func Known(role string) bool {
	switch role {
	case RoleCaller, RoleViewer, RoleAdmin:
		return true
	default:
		return false
	}
}
