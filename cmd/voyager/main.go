package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set by the linker at build time.
var version = "dev"

var (
	configPath string
	logLevel   string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "voyager",
		Short: "Stage orchestration engine for HCI and CloudTower deployments",
		Long: `voyager runs the deployment pipeline of an HCI cluster and its CloudTower
management plane as an ordered list of stages. Runs are tracked as tasks that
can be followed, aborted and inspected from the CLI, the web API or MCP.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "config file or directory holding voyager.yml (default: current directory)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level")

	root.AddCommand(stagesCmd())
	root.AddCommand(runCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(mcpCmd())
	root.AddCommand(tasksCmd())
	root.AddCommand(tokenCmd())
	root.AddCommand(versionCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
