package constants

// Session and context keys
const (
	SessionCookieName = "community_session"
	ContextKeyUserID  = "user_id"
)

// Authentication
const (
	MinPasswordLength = 8
)

// Pagination
const (
	MinPageSize     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)
