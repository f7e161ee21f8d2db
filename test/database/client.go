// Package database wires the shared PostgreSQL fixtures into database.Client
// values for integration tests.
package database

import (
	"testing"

	"github.com/warden-ci/warden/pkg/database"
	"github.com/warden-ci/warden/test/util"
)

// NewTestClient creates a test database client on an isolated schema with
// all embedded migrations applied.
// In CI (when CI_DATABASE_URL is set): connects to the external PostgreSQL
// service container. In local dev: uses a shared testcontainer.
// The schema and connections are cleaned up when the test ends.
func NewTestClient(t *testing.T) *database.Client {
	t.Helper()

	// Schema creation, migrations, and cleanup are handled by SetupTestDatabase.
	db := util.SetupTestDatabase(t)
	return database.NewClientFromDB(db)
}
