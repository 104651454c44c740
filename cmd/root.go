package cmd

import (
	"fmt"
	"os"

	"github.com/pgshift/pgshift/cmd/internal/cmdutil"
	"github.com/pgshift/pgshift/cmd/migrate"
	"github.com/pgshift/pgshift/cmd/verify"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pgshift",
	Short: "Migrate relational tables from MySQL to PostgreSQL",
	Long:  `pgshift moves table schemas and data from a MySQL database into PostgreSQL, preserving identifier case, identity columns, and sequence state.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(cmdutil.InitConfig)
	cmdutil.RegisterConfigFlags(rootCmd)
	rootCmd.AddCommand(migrate.Command())
	rootCmd.AddCommand(verify.Command())
}
