package auth

import "context"

// TestChecker is used in unit and dev testing instead of the real auth service.
type TestChecker struct {
	CredsPerToken map[string]Credentials
}

func NewTestChecker() *TestChecker {
	return &TestChecker{
		CredsPerToken: make(map[string]Credentials),
	}
}

func (tc *TestChecker) GetCredentials(_ context.Context, token string) (Credentials, error) {
	if token == "" {
		return Credentials{}, ErrNoToken
	}
	creds, ok := tc.CredsPerToken[token]
	if !ok {
		return Credentials{}, ErrForbidden
	}
	return creds, nil
}
