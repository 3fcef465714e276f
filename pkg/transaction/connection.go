// Package transaction brackets a single asynchronous unit of work with
// begin, commit or rollback, and autocommit restoration on a connection.
package transaction

import (
	"context"

	"github.com/nimburion/txscope/pkg/async"
)

// Connection is the capability set a scope needs from a connection-like
// resource. Every operation is asynchronous and may fail independently.
//
// A connection must not be driven by two scopes at the same time; the scope
// provides no locking of its own.
type Connection interface {
	// SetAutoCommit switches autocommit mode. Disabling it opens a transaction.
	SetAutoCommit(ctx context.Context, enabled bool) async.Completable

	// Commit commits the open transaction.
	Commit(ctx context.Context) async.Completable

	// Rollback discards the open transaction.
	Rollback(ctx context.Context) async.Completable
}

// Manager provides transaction management capabilities
type Manager interface {
	// WithTransaction executes the given function within a transaction
	// If the function returns an error, the transaction is rolled back
	// Otherwise, the transaction is committed
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
