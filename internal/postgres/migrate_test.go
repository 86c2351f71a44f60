package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://app:secret@db:5432/ledger?sslmode=disable", migrateURL("postgres://app:secret@db:5432/ledger?sslmode=disable"))
	assert.Equal(t, "pgx5://db/ledger", migrateURL("postgresql://db/ledger"))
	assert.Equal(t, "pgx5://db/ledger", migrateURL("pgx5://db/ledger"))
}

func TestEmbeddedMigrationsPaired(t *testing.T) {
	entries, err := migrationFS.ReadDir("migrations")
	assert.NoError(t, err)
	ups, downs := 0, 0
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			downs++
		}
	}
	assert.Equal(t, ups, downs)
	assert.Positive(t, ups)
}
