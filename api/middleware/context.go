package middleware

import (
	"context"

	"github.com/angelmondragon/minierp-console/internal/console"
)

type contextKey string

const (
	ctxProfileID contextKey = "profile_id"
	ctxConsole   contextKey = "console"
	ctxRole      contextKey = "actor_role"
	ctxUsername  contextKey = "username"
)

func ProfileIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxProfileID).(string); ok {
		return v
	}
	return ""
}

func RoleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(string); ok {
		return v
	}
	return ""
}

func UsernameFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUsername).(string); ok {
		return v
	}
	return ""
}

// ConsoleFromContext returns the console bound by ConsoleProfile, or nil.
func ConsoleFromContext(ctx context.Context) *console.Console {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxConsole).(*console.Console); ok {
		return v
	}
	return nil
}

// WithConsole injects the profile console into the context.
func WithConsole(ctx context.Context, c *console.Console) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxConsole, c)
	if c != nil {
		ctx = context.WithValue(ctx, ctxProfileID, c.ProfileID)
	}
	return ctx
}

func withActor(ctx context.Context, username, role string) context.Context {
	ctx = context.WithValue(ctx, ctxUsername, username)
	return context.WithValue(ctx, ctxRole, role)
}
