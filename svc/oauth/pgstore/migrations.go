package pgstore

import (
	"embed"

	"github.com/dmitrymomot/oauthcore/pkg/pg"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrations is the schema owned by this package.
var Migrations = pg.Migrations{FS: migrationsFS, Dir: "migrations"}
