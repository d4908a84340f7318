package api

import "context"

type contextKey string

const (
	ctxKeyPrincipal contextKey = "principal"
	ctxKeyRequestID contextKey = "request_id"
)

func withPrincipal(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, id)
}

func principalFromCtx(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyPrincipal).(string)
	return id
}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

func requestIDFromCtx(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}
