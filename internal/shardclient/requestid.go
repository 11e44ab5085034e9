package shardclient

import "context"

type requestIDKey struct{}

// ContextWithRequestID attaches a per-call correlation id to ctx. Every
// outgoing request made by (*httpClient).do with a descendant of ctx
// carries it as the X-Torua-Request-ID header, so a single id can be
// grepped across the coordinator's logs and every shard it fanned out
// to for that call.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok
}
