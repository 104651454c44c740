package migrate

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/gosuri/uiprogress"
	"github.com/pgshift/pgshift/cmd/internal/cmdutil"
	"github.com/pgshift/pgshift/extract"
	"github.com/pgshift/pgshift/load"
	"github.com/pgshift/pgshift/migrate"
	"github.com/pgshift/pgshift/typemap"
	"github.com/spf13/cobra"
)

func Command() *cobra.Command {
	var (
		concurrency        int
		batchSize          int
		lenientExtract     bool
		lenientLoad        bool
		regenerateIdentity bool
		truncate           bool
		nativeEnums        bool
		stripStringSizes   bool
		dropExisting       bool
		skipVerify         bool
		progress           bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate all matching tables from the source to the target.",
		Long:  `Migrate translates the schema of every matching source table, bulk loads its rows, then adds indexes, foreign keys, and sequence state, and verifies row counts.`,
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

			cfg := migrate.Config{
				Extract: extract.Config{
					BatchSize: batchSize,
					Lenient:   lenientExtract,
				},
				Load:         load.Config{Truncate: truncate},
				Filter:       cmdutil.TableFilter(),
				Concurrency:  concurrency,
				DropExisting: dropExisting,
				SkipVerify:   skipVerify,
			}
			if lenientLoad {
				cfg.Load.Strictness = load.Lenient
			}
			if regenerateIdentity {
				cfg.Load.Identity = load.IdentityRegenerate
			}
			cfg.Translate.TypeMap = typemap.Config{
				EnumsAsNative:    nativeEnums,
				StripStringSizes: stripStringSizes,
			}
			cfg.Overrides, err = cmdutil.TableOverrides()
			if err != nil {
				return err
			}

			var bar *uiprogress.Bar
			if progress {
				uiprogress.Start()
				cfg.OnPlan = func(numTables int) {
					if numTables > 0 {
						bar = uiprogress.AddBar(numTables).AppendCompleted().PrependElapsed()
					}
				}
				cfg.OnTableDone = func(migrate.TableResult) {
					if bar != nil {
						bar.Incr()
					}
				}
			}

			results, err := migrate.Run(ctx, cfg, logger, conns)
			if progress {
				uiprogress.Stop()
			}
			if err != nil {
				return errors.Wrap(err, "error migrating")
			}

			var failedMigrate, failedVerify int
			for _, res := range results {
				if res.Err != nil {
					failedMigrate++
					continue
				}
				if !skipVerify && !res.Verify.Passed() {
					failedVerify++
				}
				for _, skipped := range res.Skipped {
					logger.Warn().
						Str("table", string(res.Table)).
						Int("line", skipped.Line).
						Msg("record skipped during extraction")
				}
			}
			if failedMigrate > 0 {
				return errors.Newf("%d table(s) failed to migrate", failedMigrate)
			}
			if failedVerify > 0 {
				return errors.Newf("%d table(s) failed verification", failedVerify)
			}
			return nil
		},
	}

	cmd.PersistentFlags().IntVar(
		&concurrency,
		"concurrency",
		4,
		"number of tables to migrate at a time",
	)
	cmd.PersistentFlags().IntVar(
		&batchSize,
		"batch-size",
		extract.DefaultBatchSize,
		"number of rows per extraction batch",
	)
	cmd.PersistentFlags().BoolVar(
		&lenientExtract,
		"lenient-extract",
		false,
		"skip dump records that cannot be reassembled instead of failing the table",
	)
	cmd.PersistentFlags().BoolVar(
		&lenientLoad,
		"lenient-load",
		false,
		"insert row by row and skip rows the target rejects instead of failing the table",
	)
	cmd.PersistentFlags().BoolVar(
		&regenerateIdentity,
		"regenerate-identity",
		false,
		"let the target assign fresh identity values instead of preserving source ones",
	)
	cmd.PersistentFlags().BoolVar(
		&nativeEnums,
		"native-enums",
		false,
		"create a PostgreSQL enum type per source enum column instead of VARCHAR",
	)
	cmd.PersistentFlags().BoolVar(
		&stripStringSizes,
		"strip-string-sizes",
		false,
		"render CHAR/VARCHAR columns as TEXT so oversized values cannot be rejected",
	)
	cmd.PersistentFlags().BoolVar(
		&truncate,
		"truncate",
		false,
		"truncate target tables before loading",
	)
	cmd.PersistentFlags().BoolVar(
		&dropExisting,
		"drop-existing",
		false,
		"drop target tables before creating them",
	)
	cmd.PersistentFlags().BoolVar(
		&skipVerify,
		"skip-verify",
		false,
		"skip the row count verification pass",
	)
	cmd.PersistentFlags().BoolVar(
		&progress,
		"progress",
		true,
		"display a progress bar",
	)
	cmdutil.RegisterDBConnFlags(cmd)
	cmdutil.RegisterLoggerFlags(cmd)
	cmdutil.RegisterNameFilterFlags(cmd)
	cmdutil.RegisterMetricsFlags(cmd)
	return cmd
}
