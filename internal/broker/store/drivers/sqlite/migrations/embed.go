package migrations

import "embed"

// Migrations holds the SQL migration files compiled into the binary so the
// broker can bring its schema up to date on start without shipping loose
// files alongside the executable.
//
//go:embed *.sql
var Migrations embed.FS
