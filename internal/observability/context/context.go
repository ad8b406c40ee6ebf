package context

import "context"

type ctxKey int

const (
	requestIDKey ctxKey = iota
	actorKey
)

type actor struct {
	Type string
	ID   string
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// WithActor records who triggered the current operation, for logs and audit.
func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	return context.WithValue(ctx, actorKey, actor{Type: actorType, ID: actorID})
}

// ActorFromContext returns the actor recorded on ctx, defaulting to "system".
func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "system", ""
	}
	a, ok := ctx.Value(actorKey).(actor)
	if !ok || a.Type == "" {
		return "system", ""
	}
	return a.Type, a.ID
}
