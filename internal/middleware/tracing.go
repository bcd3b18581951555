package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const requestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// Tracing assigns every request an id: the caller's X-Request-ID when sent,
// else the active span's trace id, else a fresh UUID. The id is echoed in
// the response and tagged on the span.
func Tracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		span := trace.SpanFromContext(r.Context())

		id := r.Header.Get(requestIDHeader)
		if id == "" {
			if sc := span.SpanContext(); sc.HasTraceID() {
				id = sc.TraceID().String()
			} else {
				id = uuid.New().String()
			}
		}

		span.SetAttributes(attribute.String("http.request_id", id))

		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
