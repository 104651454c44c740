package verify

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/pgshift/pgshift/cmd/internal/cmdutil"
	"github.com/pgshift/pgshift/dbconn"
	"github.com/pgshift/pgshift/migrate"
	"github.com/pgshift/pgshift/verify"
	"github.com/spf13/cobra"
)

func Command() *cobra.Command {
	var checkIdentity bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify row counts and table structure between the source and target databases.",
		Long:  `Verify compares, table by table, the target's column structure against the source schema and the number of rows on the source against the number of rows on the target.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := cmdutil.Logger()
			if err != nil {
				return err
			}
			cmdutil.RunMetricsServer(logger)

			ctx := context.Background()
			conns, err := cmdutil.LoadDBConns(ctx)
			if err != nil {
				return err
			}
			defer func() {
				for _, conn := range conns {
					_ = conn.Close(ctx)
				}
			}()
			source, ok := conns[0].(*dbconn.MySQLConn)
			if !ok {
				return errors.Newf("source must be a MySQL connection, got %T", conns[0])
			}
			target, ok := conns[1].(*dbconn.PGConn)
			if !ok {
				return errors.Newf("target must be a PostgreSQL connection, got %T", conns[1])
			}

			schemas, unreadable, err := migrate.SourceSchemas(ctx, source, cmdutil.TableFilter())
			if err != nil {
				return errors.Wrap(err, "error reading source schemas")
			}

			failed := len(unreadable)
			for _, f := range unreadable {
				logger.Err(f.Err).Str("table", string(f.Table)).Msg("source schema unreadable")
			}
			for _, schema := range schemas {
				mismatches, err := verify.Columns(ctx, target, schema)
				if err != nil {
					return errors.Wrap(err, "error reading target columns")
				}
				for _, m := range mismatches {
					logger.Warn().Str("table", string(schema.Name)).Msg(m)
				}
				identityOK := true
				if checkIdentity {
					idRes, err := verify.Identity(ctx, source, target, schema)
					if err != nil {
						return errors.Wrap(err, "error checking identity values")
					}
					for _, m := range idRes.Mismatches {
						logger.Warn().Str("table", string(schema.Name)).Msg(m)
					}
					identityOK = idRes.Passed()
				}
				res := verify.Table(ctx, logger, source, target, schema)
				if !res.Passed() || len(mismatches) > 0 || !identityOK {
					failed++
				}
			}
			total := len(schemas) + len(unreadable)
			if failed > 0 {
				return errors.Newf("%d of %d table(s) failed verification", failed, total)
			}
			logger.Info().Int("num_tables", total).Msg("all tables verified")
			return nil
		},
	}

	cmd.PersistentFlags().BoolVar(
		&checkIdentity,
		"check-identity",
		true,
		"compare identity column values and sequence state; disable after a regenerate-identity migration",
	)
	cmdutil.RegisterDBConnFlags(cmd)
	cmdutil.RegisterLoggerFlags(cmd)
	cmdutil.RegisterNameFilterFlags(cmd)
	cmdutil.RegisterMetricsFlags(cmd)
	return cmd
}
