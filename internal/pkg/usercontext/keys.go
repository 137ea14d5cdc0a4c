package usercontext

// Locals keys set by the identity middleware
const (
	KeyUserContext   = "USER_CONTEXT"
	KeyUserID        = "user_id"
	KeyIsAdmin       = "isAdmin"
	KeyFromProtected = "from_protected"
)
