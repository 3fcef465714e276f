package logger

import (
	"context"
)

// ContextKey is the type of context keys read by WithContext.
type ContextKey string

// TxIDKey carries the identifier of the enclosing transaction scope.
const TxIDKey ContextKey = "tx_id"

// Logger defines the interface for structured logging.
// All log methods accept a message string followed by key-value pairs for structured fields.
type Logger interface {
	// Debug logs a debug-level message with optional key-value pairs
	Debug(msg string, args ...any)

	// Info logs an info-level message with optional key-value pairs
	Info(msg string, args ...any)

	// Warn logs a warning-level message with optional key-value pairs
	Warn(msg string, args ...any)

	// Error logs an error-level message with optional key-value pairs
	Error(msg string, args ...any)

	// With creates a child logger with additional key-value pairs that will be
	// included in all subsequent log entries
	With(args ...any) Logger

	// WithContext creates a child logger carrying the transaction ID found in ctx
	WithContext(ctx context.Context) Logger
}

// ContextWithTxID returns a copy of ctx carrying the transaction ID.
func ContextWithTxID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TxIDKey, id)
}

// TxIDFromContext extracts the transaction ID placed by ContextWithTxID.
func TxIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(TxIDKey).(string); ok {
		return id
	}
	return ""
}
