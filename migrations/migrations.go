// Package migrations embeds the goose SQL migrations for the clustering
// schema (clusters, memberships, message embeddings, topic references).
//
// Files follow the YYYYMMDDHHMMSS_description.sql naming convention and are
// applied in order during database initialization.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
