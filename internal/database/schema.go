package database

import _ "embed"

// operationsSchema is the single source of truth for the operations database.
//
//go:embed schemas/operations_schema.sql
var operationsSchema string

// Schema returns the embedded operations schema. Test helpers use it to
// build in-memory databases identical to production.
func Schema() string {
	return operationsSchema
}
