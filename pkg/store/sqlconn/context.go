package sqlconn

import "context"

type contextKey string

const connContextKey contextKey = "sqlconn"

// WithConn returns a copy of ctx carrying c, so that code running inside a
// transaction can reach the same connection.
func WithConn(ctx context.Context, c *Conn) context.Context {
	return context.WithValue(ctx, connContextKey, c)
}

// ConnFromContext extracts the connection placed by WithConn, if present.
func ConnFromContext(ctx context.Context) (*Conn, bool) {
	if ctx == nil {
		return nil, false
	}
	c, ok := ctx.Value(connContextKey).(*Conn)
	return c, ok && c != nil
}
