package cmdutil

import (
	"context"

	"github.com/pgshift/pgshift/dbconn"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func RegisterDBConnFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String(
		"source",
		"",
		"URL of the source MySQL database",
	)
	cmd.PersistentFlags().String(
		"target",
		"",
		"URL of the target PostgreSQL database",
	)
	if err := viper.BindPFlag("source", cmd.PersistentFlags().Lookup("source")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("target", cmd.PersistentFlags().Lookup("target")); err != nil {
		panic(err)
	}
}

// LoadDBConns connects source then target, from flags, config file, or the
// PGSHIFT_SOURCE / PGSHIFT_TARGET environment.
func LoadDBConns(ctx context.Context) (dbconn.OrderedConns, error) {
	source, err := dbconn.Connect(ctx, "source", viper.GetString("source"))
	if err != nil {
		return dbconn.OrderedConns{}, err
	}
	target, err := dbconn.Connect(ctx, "target", viper.GetString("target"))
	if err != nil {
		return dbconn.OrderedConns{}, err
	}
	return dbconn.OrderedConns{source, target}, nil
}
