package types

import "context"

type ContextKey string

const (
	CtxRequestID ContextKey = "ctx_request_id"
	CtxUserID    ContextKey = "ctx_user_id"
	CtxEventID   ContextKey = "ctx_event_id"
)

func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(CtxRequestID).(string); ok {
		return id
	}
	return ""
}

func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(CtxUserID).(string); ok {
		return id
	}
	return ""
}

// GetEventID returns the processor event currently being reconciled, if any.
func GetEventID(ctx context.Context) string {
	if id, ok := ctx.Value(CtxEventID).(string); ok {
		return id
	}
	return ""
}

func WithEventID(ctx context.Context, eventID string) context.Context {
	return context.WithValue(ctx, CtxEventID, eventID)
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, CtxUserID, userID)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, CtxRequestID, requestID)
}
