package migrations

import (
	_ "embed"

	"github.com/chainflip-io/chainflip-backend-sub000/internal/db"
)

//go:embed 001_ingest_state.sql
var mig001 string

//go:embed 002_swap_schema.sql
var mig002 string

func RunMigrations(dbPath string) error {
	migrations := []db.Migration{
		{
			ID:  "001_ingest_state.sql",
			SQL: mig001,
		},
		{
			ID:  "002_swap_schema.sql",
			SQL: mig002,
		},
	}

	return db.RunMigrations(dbPath, migrations)
}
