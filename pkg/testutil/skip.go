// Package testutil holds helpers shared by the integration tests.
package testutil

import (
	"os"
	"testing"
)

// IntegrationEnv opts in to container-backed tests when running under CI.
const IntegrationEnv = "INTEGRATION_TESTS"

// RequireIntegration skips container-backed tests in -short mode, and in CI
// unless INTEGRATION_TESTS is set.
func RequireIntegration(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if os.Getenv(IntegrationEnv) == "" && os.Getenv("CI") != "" {
		t.Skipf("skipping integration test (set %s=1 to run)", IntegrationEnv)
	}
}
