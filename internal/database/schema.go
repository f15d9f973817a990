package database

import _ "embed"

// Schema is the full index schema as a single script. Tests apply it
// directly to in-memory databases instead of running migrations.
//
//go:embed migrations/files/0001_index.up.sql
var Schema string
