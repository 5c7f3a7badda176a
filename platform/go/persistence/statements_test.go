package persistence

import (
	"testing"

	"github.com/stretchr/testify/require"

	sqlassets "github.com/vetflow-labs/vetflow/database"
)

func TestSplitStatementsKeepsDollarBodiesIntact(t *testing.T) {
	t.Parallel()

	script := `
CREATE TABLE IF NOT EXISTS a (id INT);
DO $$
BEGIN
    CREATE TYPE t AS ENUM ('x','y');
EXCEPTION
    WHEN duplicate_object THEN NULL;
END$$;
CREATE TABLE IF NOT EXISTS b (id INT);
`

	stmts := SplitStatements(script)
	require.Len(t, stmts, 3)
	require.Contains(t, stmts[1], "duplicate_object")
	require.Contains(t, stmts[1], "CREATE TYPE t AS ENUM ('x','y');")
}

func TestSplitStatementsTaggedQuotes(t *testing.T) {
	t.Parallel()

	script := `SELECT $body$one; two$body$; SELECT 2`
	stmts := SplitStatements(script)
	require.Len(t, stmts, 2)
	require.Equal(t, `SELECT $body$one; two$body$`, stmts[0])
	require.Equal(t, "SELECT 2", stmts[1])
}

func TestSplitStatementsEmbeddedAssets(t *testing.T) {
	t.Parallel()

	// Every embedded asset must split into at least one statement and none
	// may come back truncated mid dollar-quote.
	for _, asset := range []string{
		sqlassets.DirectorySQL,
		sqlassets.WorkspaceBaseSQL,
		sqlassets.WorkspaceClientsSQL,
	} {
		stmts := SplitStatements(asset)
		require.NotEmpty(t, stmts)
		for _, stmt := range stmts {
			require.Equal(t, 0, countUnclosedDollarQuotes(stmt), "statement %q", stmt)
		}
	}
}

func countUnclosedDollarQuotes(stmt string) int {
	open := 0
	for i := 0; i < len(stmt); i++ {
		if stmt[i] == '$' && i+1 < len(stmt) && stmt[i+1] == '$' {
			open++
			i++
		}
	}
	return open % 2
}
