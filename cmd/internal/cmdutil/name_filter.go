package cmdutil

import (
	"github.com/pgshift/pgshift/migrate"
	"github.com/spf13/cobra"
)

var tableFilter = migrate.DefaultFilterConfig()

func RegisterNameFilterFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(
		&tableFilter.TableFilter,
		"table-filter",
		tableFilter.TableFilter,
		"POSIX regexp filter for tables to action on",
	)
}

func TableFilter() migrate.FilterConfig {
	return tableFilter
}
