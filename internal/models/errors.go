package models

import "errors"

// Authentication and authorization failures. The distinctions between the token
// errors drive the guard's refresh decision; callers facing end users collapse them
// into "please log in again" or "access denied".
var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrTokenNotFound       = errors.New("token not found")
	ErrTokenExpired        = errors.New("token expired")
	ErrTokenRevoked        = errors.New("token revoked")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshExpired      = errors.New("refresh token expired")
	ErrForbidden           = errors.New("forbidden")
)

// Identity management failures.
var (
	ErrUnknownRole      = errors.New("unknown role")
	ErrIdentityNotFound = errors.New("identity not found")
	ErrUsernameTaken    = errors.New("username already registered")
	ErrWeakPassword     = errors.New("password does not meet requirements")
)

// Wire codes carried in the "code" field of error responses.
const (
	CodeInvalidCredentials  = "invalid_credentials"
	CodeTokenNotFound       = "token_not_found"
	CodeTokenExpired        = "token_expired"
	CodeTokenRevoked        = "token_revoked"
	CodeInvalidRefreshToken = "invalid_refresh_token"
	CodeRefreshExpired      = "refresh_expired"
	CodeForbidden           = "forbidden"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrInvalidCredentials, CodeInvalidCredentials},
	{ErrTokenNotFound, CodeTokenNotFound},
	{ErrTokenExpired, CodeTokenExpired},
	{ErrTokenRevoked, CodeTokenRevoked},
	{ErrInvalidRefreshToken, CodeInvalidRefreshToken},
	{ErrRefreshExpired, CodeRefreshExpired},
	{ErrForbidden, CodeForbidden},
}

// ErrorCode returns the wire code for err, or "" when err is not part of the
// authentication taxonomy.
func ErrorCode(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ""
}

// ErrorFromCode is the inverse of ErrorCode. Unknown codes map to nil.
func ErrorFromCode(code string) error {
	for _, c := range codes {
		if c.code == code {
			return c.err
		}
	}
	return nil
}
