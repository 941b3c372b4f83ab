package journal

import (
	_ "embed"
)

//go:embed schema.sql
var initSchemaSQL string

const (
	insertExportSQL = `
INSERT INTO exports (
                     session,
                     path,
                     started_at,
                     finished_at,
                     bytes,
                     success,
                     status)
VALUES (?, ?, ?, ?, ?, ?, ?)`

	selectExportsSQL = `
SELECT
    session,
    path,
    started_at,
    finished_at,
    bytes,
    success,
    status
FROM exports
ORDER BY id DESC
LIMIT ?`

	selectLastSessionSQL = `
SELECT
    COALESCE(MAX(session), 0)
FROM exports`
)
