// Package db provides the embedded database schema and seed data.
package db

import _ "embed"

// Schema contains the DDL statements for all application tables.
// Every statement is idempotent so it can run on each start.
//
//go:embed migrations/001_schema.sql
var Schema string

// SeedProducts is a JSON array of catalog records in the supplier feed
// format.
//
//go:embed seed/products.json
var SeedProducts []byte
