package auth

import (
	"context"
	"errors"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

var (
	ErrNoToken      = errors.New("no token")
	ErrForbidden    = errors.New("forbidden")
	ErrTokenFormat  = errors.New("token format error")
	ErrNoCredential = errors.New("no credentials in context")
)

// Credentials is what the auth service resolves a bearer token into.
// The core only ever consumes the ID (ownership checks) and the Role.
type Credentials struct {
	Role string `json:"role"`
	ID   int    `json:"id"`
}

type credentialsCtxKey struct{}

func CtxWithCredentials(ctx context.Context, creds Credentials) context.Context {
	return context.WithValue(ctx, credentialsCtxKey{}, creds)
}

func CredentialsFromCtx(ctx context.Context) (Credentials, error) {
	creds, ok := ctx.Value(credentialsCtxKey{}).(Credentials)
	if !ok {
		return Credentials{}, ErrNoCredential
	}
	return creds, nil
}
