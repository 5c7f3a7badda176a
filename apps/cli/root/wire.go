package root

import (
	"github.com/vetflow-labs/vetflow/apps/cli/cmd/auth"
	"github.com/vetflow-labs/vetflow/apps/cli/cmd/bootstrap"
	workspacecmd "github.com/vetflow-labs/vetflow/apps/cli/cmd/workspace"
)

func init() {
	Root().AddCommand(auth.Command())
	Root().AddCommand(bootstrap.Command())
	Root().AddCommand(workspacecmd.Command())
}
