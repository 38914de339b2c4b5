package core

import "context"

type contextKey string

const ctxKeyRequestInfo contextKey = "request_info"

// RequestInfo identifies the caller of an operation for audit entries.
type RequestInfo struct {
	RequestID string
	IPAddress string
	UserAgent string
	Source    string // "http", "cli"
}

// WithRequestInfo attaches caller details to ctx.
func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, ctxKeyRequestInfo, info)
}

// RequestInfoFromContext returns the caller details attached to ctx, if any.
func RequestInfoFromContext(ctx context.Context) RequestInfo {
	if v, ok := ctx.Value(ctxKeyRequestInfo).(RequestInfo); ok {
		return v
	}
	return RequestInfo{}
}
