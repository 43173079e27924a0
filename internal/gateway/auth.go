package gateway

import (
	"context"
	"net/http"
)

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	var out LoginResponse
	if err := c.doJSON(ctx, request{
		op:     "auth.login",
		method: http.MethodPost,
		path:   "/auth/login",
		public: true,
	}, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Register creates a backend account. The response body is not interpreted.
func (c *Client) Register(ctx context.Context, req RegisterRequest) error {
	return c.doJSON(ctx, request{
		op:     "auth.register",
		method: http.MethodPost,
		path:   "/auth/register",
		public: true,
	}, req, nil)
}
