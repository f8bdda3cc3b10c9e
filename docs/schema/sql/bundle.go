// Package sqldocs exposes the catalogue DDL for both stores directly from the docs tree.
package sqldocs

import _ "embed"

// SQLite contains the source catalogue DDL.
//
//go:embed sqlite.sql
var SQLite string

// Postgres contains the destination content-schema DDL.
//
//go:embed postgres.sql
var Postgres string
