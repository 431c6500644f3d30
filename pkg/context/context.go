package context

import "context"

type ContextKey string

// HeaderRunID carries the export run id on responses that create or read a run
const HeaderRunID = "X-Export-Run-Id"

var (
	RequestIDKey = ContextKey("X-Request-Id")
	MethodKey    = ContextKey("X-Method")
	RouteKey     = ContextKey("X-Route")
	RemoteIPKey  = ContextKey("X-Remote-Ip")
	RefererKey   = ContextKey("X-Referer")
	RunIDKey     = ContextKey(HeaderRunID)
	ChannelIDKey = ContextKey("X-Channel-Id")
)

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	return getString(ctx, RequestIDKey)
}

func SetMethod(ctx context.Context, method string) context.Context {
	return context.WithValue(ctx, MethodKey, method)
}

func GetMethod(ctx context.Context) string {
	return getString(ctx, MethodKey)
}

func SetRoute(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, RouteKey, route)
}

func GetRoute(ctx context.Context) string {
	return getString(ctx, RouteKey)
}

func SetRemoteIP(ctx context.Context, remoteIP string) context.Context {
	return context.WithValue(ctx, RemoteIPKey, remoteIP)
}

func GetRemoteIP(ctx context.Context) string {
	return getString(ctx, RemoteIPKey)
}

func SetReferer(ctx context.Context, referer string) context.Context {
	return context.WithValue(ctx, RefererKey, referer)
}

func GetReferer(ctx context.Context) string {
	return getString(ctx, RefererKey)
}

// SetRunID tags the context with the export run being executed
func SetRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

func GetRunID(ctx context.Context) string {
	return getString(ctx, RunIDKey)
}

func SetChannelID(ctx context.Context, channelID int) context.Context {
	return context.WithValue(ctx, ChannelIDKey, channelID)
}

func GetChannelID(ctx context.Context) int {
	value, ok := ctx.Value(ChannelIDKey).(int)
	if !ok {
		return 0
	}
	return value
}

// Detach returns a background context carrying the request scoped values of ctx. Work that
// outlives the request (asynchronous exports) starts from it.
func Detach(ctx context.Context) context.Context {
	detached := context.Background()
	for _, key := range []ContextKey{RequestIDKey, MethodKey, RouteKey, RemoteIPKey, RefererKey, RunIDKey} {
		if value := getString(ctx, key); value != "" {
			detached = context.WithValue(detached, key, value)
		}
	}
	if channelID := GetChannelID(ctx); channelID != 0 {
		detached = SetChannelID(detached, channelID)
	}
	return detached
}

func getString(ctx context.Context, key ContextKey) string {
	value, ok := ctx.Value(key).(string)
	if !ok {
		return ""
	}
	return value
}
