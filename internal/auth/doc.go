// Package auth provides optional bearer-token authentication for the HTTP
// endpoints.
//
// # Tokens
//
// Tokens are HS256 JWTs signed with the configured auth.jwt_secret, which
// must be at least MinSecretLength bytes. The "sub" claim is required and
// "exp" is enforced:
//
//	v, err := auth.NewJWTVerifier(secret)
//	token, err := v.Generate("cursor", 24*time.Hour)
//	subject, err := v.Verify(token)
//
// Only HS256 is accepted, so tokens signed with "none" or an asymmetric
// algorithm are rejected before the key is consulted.
//
// # HTTP Middleware
//
// HTTPAuthMiddleware reads the token from "Authorization: Bearer <token>" or,
// for EventSource clients that cannot set headers, from the "token" query
// parameter. Failures answer 401 with a JSON error body. The verified subject
// is available to handlers through SubjectFromContext.
package auth
