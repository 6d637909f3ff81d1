package usercontext

// Shared Locals keys used across controllers and middlewares
const (
	KeyUserContext   = "USER_CONTEXT"
	KeyUserID        = "user_id"
	KeyFactoryID     = "factory_id"
	KeyFromProtected = "from_protected"
)
