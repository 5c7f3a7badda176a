package sqlassets

import _ "embed"

// SQL is embedded at build time so binaries stay self-contained.

//go:embed schema/core/directory.sql
var DirectorySQL string

//go:embed schema/workspace/base_tables.sql
var WorkspaceBaseSQL string

//go:embed schema/workspace/clients.sql
var WorkspaceClientsSQL string
