package health

import (
	"context"
	"time"

	"github.com/nimburion/txscope/pkg/transaction"
)

const defaultCheckTimeout = 5 * time.Second

// Checkable is an interface for components that support health checks
type Checkable interface {
	HealthCheck(ctx context.Context) error
}

// AdapterChecker reports a component healthy when its HealthCheck succeeds
// within the timeout.
type AdapterChecker struct {
	name    string
	adapter Checkable
	timeout time.Duration
}

// NewAdapterChecker creates a new health checker for an adapter
func NewAdapterChecker(name string, adapter Checkable, timeout time.Duration) *AdapterChecker {
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	return &AdapterChecker{
		name:    name,
		adapter: adapter,
		timeout: timeout,
	}
}

// Check performs the health check on the adapter
func (c *AdapterChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return newResult(c.name, c.adapter.HealthCheck(checkCtx), start)
}

// Name returns the name of the health check
func (c *AdapterChecker) Name() string {
	return c.name
}

// TransactionChecker runs an empty transaction through a manager. It catches
// sessions that answer pings but cannot open or commit a transaction.
type TransactionChecker struct {
	name    string
	manager transaction.Manager
	timeout time.Duration
}

// NewTransactionChecker creates a checker that commits an empty transaction.
func NewTransactionChecker(name string, manager transaction.Manager, timeout time.Duration) *TransactionChecker {
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	return &TransactionChecker{
		name:    name,
		manager: manager,
		timeout: timeout,
	}
}

// Check performs the round trip.
func (c *TransactionChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.manager.WithTransaction(checkCtx, func(context.Context) error { return nil })
	return newResult(c.name, err, start)
}

// Name returns the name of the health check
func (c *TransactionChecker) Name() string {
	return c.name
}

func newResult(name string, err error, start time.Time) CheckResult {
	result := CheckResult{
		Name:      name,
		Status:    StatusHealthy,
		Message:   "OK",
		Timestamp: time.Now(),
		Duration:  time.Since(start),
	}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = ""
		result.Error = err.Error()
	}
	return result
}
