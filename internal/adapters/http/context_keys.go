package http

// contextKey is a typed key for request context values.
type contextKey string

// claimsContextKey holds the verified JWT claims.
const claimsContextKey contextKey = "claims"
