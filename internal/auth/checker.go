package auth

import "context"

var _ Checker = (*Client)(nil)
var _ Checker = (*TestChecker)(nil)

type Checker interface {
	GetCredentials(ctx context.Context, token string) (Credentials, error)
}
