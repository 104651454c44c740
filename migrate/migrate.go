// Package migrate orchestrates a full table migration: translate the source
// schemas, create the bare tables, move the data table by table, then add
// indexes, foreign keys, and sequence state, and finally verify row counts.
package migrate

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/cockroachdb/cockroachdb-parser/pkg/sql/lexbase"
	"github.com/cockroachdb/cockroachdb-parser/pkg/sql/sem/tree"
	"github.com/cockroachdb/errors"
	"github.com/pgshift/pgshift/dbconn"
	"github.com/pgshift/pgshift/dbtable"
	"github.com/pgshift/pgshift/extract"
	"github.com/pgshift/pgshift/load"
	"github.com/pgshift/pgshift/retry"
	"github.com/pgshift/pgshift/translate"
	"github.com/pgshift/pgshift/typemap"
	"github.com/pgshift/pgshift/verify"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	Extract   extract.Config
	Load      load.Config
	Translate translate.Config
	Filter    FilterConfig

	Concurrency int
	// DropExisting drops each target table before creating it.
	DropExisting bool
	SkipVerify   bool

	// Overrides adjusts load behavior for individual tables.
	Overrides map[tree.Name]TableOverride

	// OnPlan observes the number of tables about to migrate and OnTableDone
	// each finished table, for progress reporting.
	OnPlan      func(numTables int)
	OnTableDone func(TableResult)
}

// TableOverride replaces parts of the load configuration for one table.
// Nil fields keep the global setting.
type TableOverride struct {
	Identity   *load.IdentityMode
	Strictness *load.Strictness
	Truncate   *bool
}

// loadConfigFor applies any per-table override to the global load config.
func (cfg Config) loadConfigFor(table tree.Name) load.Config {
	lc := cfg.Load
	ov, ok := cfg.Overrides[table]
	if !ok {
		return lc
	}
	if ov.Identity != nil {
		lc.Identity = *ov.Identity
	}
	if ov.Strictness != nil {
		lc.Strictness = *ov.Strictness
	}
	if ov.Truncate != nil {
		lc.Truncate = *ov.Truncate
	}
	return lc
}

type TableResult struct {
	Table tree.Name
	Load  load.Result
	// SequenceValue is what the identity sequence was set to, 0 when the
	// table has none.
	SequenceValue int64
	// Skipped are dump records dropped during extraction in lenient mode.
	Skipped []extract.SkippedRecord
	Verify  verify.Result
	// Err is set when the table failed to migrate. Other tables still run.
	Err error
}

// Run migrates every matching source table into the target database.
func Run(
	ctx context.Context, cfg Config, logger zerolog.Logger, conns dbconn.OrderedConns,
) ([]TableResult, error) {
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 4
	}
	source, ok := conns[0].(*dbconn.MySQLConn)
	if !ok {
		return nil, errors.Newf("source must be a MySQL connection, got %T", conns[0])
	}
	target, ok := conns[1].(*dbconn.PGConn)
	if !ok {
		return nil, errors.Newf("target must be a PostgreSQL connection, got %T", conns[1])
	}

	logger.Info().Msg("reading source schemas")
	schemas, failedSrc, err := SourceSchemas(ctx, source, cfg.Filter)
	if err != nil {
		return nil, err
	}
	logger.Info().Int("num_tables", len(schemas)).Msg("source schemas parsed")

	type resultsMu struct {
		sync.Mutex
		results []TableResult
	}
	var results resultsMu
	for _, f := range failedSrc {
		logger.Err(f.Err).Str("table", string(f.Table)).Msg("skipping table, unreadable schema")
		results.results = append(results.results, TableResult{Table: f.Table, Err: f.Err})
	}

	stmts, planned, failedPlan := planTables(schemas, cfg.Translate)
	for _, f := range failedPlan {
		logger.Err(f.Err).Str("table", string(f.Table)).Msg("skipping table, untranslatable schema")
		results.results = append(results.results, TableResult{Table: f.Table, Err: f.Err})
	}
	migrated := make(map[tree.Name]bool, len(planned))
	for _, schema := range planned {
		migrated[schema.Name] = true
	}
	// Foreign keys pointing outside the migrated set will fail in the final
	// phase, and references into a regenerated identity space may dangle;
	// surface both up front.
	for _, schema := range planned {
		for _, edge := range schema.DependencyEdges() {
			if !migrated[edge.To] {
				logger.Warn().
					Str("table", string(edge.From)).
					Str("references", string(edge.To)).
					Msg("foreign key references a table outside the migration")
				continue
			}
			if cfg.loadConfigFor(edge.To).Identity == load.IdentityRegenerate {
				logger.Warn().
					Str("table", string(edge.From)).
					Str("references", string(edge.To)).
					Msg("foreign key references a table whose identity values are regenerated")
			}
		}
	}

	logger.Info().Msg("creating target tables")
	var work []*dbtable.TableSchema
	for _, schema := range planned {
		if err := createTable(ctx, cfg, target, schema, stmts[schema.Name].Phase1); err != nil {
			logger.Err(err).Str("table", string(schema.Name)).Msg("skipping table, target DDL failed")
			results.results = append(results.results, TableResult{Table: schema.Name, Err: err})
			continue
		}
		work = append(work, schema)
	}
	if cfg.OnPlan != nil {
		cfg.OnPlan(len(work))
	}

	workCh := make(chan *dbtable.TableSchema)
	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Concurrency; i++ {
		g.Go(func() error {
			srcConn, err := source.Clone(gCtx)
			if err != nil {
				return err
			}
			defer func() { _ = srcConn.Close(gCtx) }()
			tgtConn, err := target.Clone(gCtx)
			if err != nil {
				return err
			}
			defer func() { _ = tgtConn.Close(gCtx) }()

			for {
				table, ok := <-workCh
				if !ok {
					return nil
				}
				res, err := migrateTable(
					gCtx, cfg, logger,
					srcConn.(*dbconn.MySQLConn), tgtConn.(*dbconn.PGConn),
					table,
				)
				if err != nil {
					if gCtx.Err() != nil {
						return err
					}
					// One table failing does not stop the others.
					logger.Err(err).Str("table", string(table.Name)).Msg("table migration failed")
					res.Err = err
				}
				results.Lock()
				results.results = append(results.results, res)
				results.Unlock()
				if cfg.OnTableDone != nil {
					cfg.OnTableDone(res)
				}
			}
		})
	}
	go func() {
		defer close(workCh)
		for _, schema := range work {
			select {
			case workCh <- schema:
			case <-gCtx.Done():
				return
			}
		}
	}()
	if err := g.Wait(); err != nil {
		return nil, err
	}

	resIdx := make(map[tree.Name]int, len(results.results))
	failed := make(map[tree.Name]bool)
	for i, res := range results.results {
		resIdx[res.Table] = i
		if res.Err != nil {
			failed[res.Table] = true
		}
	}
	markFailed := func(name tree.Name, err error) {
		logger.Err(err).Str("table", string(name)).Msg("table migration failed")
		failed[name] = true
		if i, ok := resIdx[name]; ok {
			results.results[i].Err = err
		}
	}

	logger.Info().Msg("creating indexes")
	for _, schema := range work {
		if failed[schema.Name] {
			continue
		}
		for _, stmt := range stmts[schema.Name].Phase2 {
			if _, err := target.Exec(ctx, stmt); err != nil {
				markFailed(schema.Name, errors.Wrapf(err, "creating indexes for table %s", schema.Name))
				break
			}
		}
	}
	logger.Info().Msg("creating foreign keys")
	for _, schema := range work {
		if failed[schema.Name] {
			continue
		}
		// A reference to a failed table cannot validate.
		skipFKs := false
		for _, edge := range stmts[schema.Name].Edges {
			if failed[edge.To] {
				logger.Warn().
					Str("table", string(schema.Name)).
					Str("references", string(edge.To)).
					Msg("skipping foreign keys, referenced table failed to migrate")
				skipFKs = true
			}
		}
		if skipFKs {
			continue
		}
		for _, stmt := range stmts[schema.Name].Phase3 {
			if _, err := target.Exec(ctx, stmt); err != nil {
				markFailed(schema.Name, errors.Wrapf(err, "creating foreign keys for table %s", schema.Name))
				break
			}
		}
	}

	if !cfg.SkipVerify {
		byName := make(map[tree.Name]*dbtable.TableSchema, len(schemas))
		for _, s := range schemas {
			byName[s.Name] = s
		}
		for i := range results.results {
			res := &results.results[i]
			if res.Err != nil {
				continue
			}
			res.Verify = verify.Table(ctx, logger, source, target, byName[res.Table])
		}
	}

	logger.Info().Int("num_tables", len(results.results)).Msg("migration complete")
	return results.results, nil
}

// planTables renders DDL for every schema. A schema that cannot translate
// lands in the failed slice; the rest keep their dependency order.
func planTables(
	schemas []*dbtable.TableSchema, cfg translate.Config,
) (map[tree.Name]translate.Statements, []*dbtable.TableSchema, []FailedTable) {
	stmts := make(map[tree.Name]translate.Statements, len(schemas))
	planned := make([]*dbtable.TableSchema, 0, len(schemas))
	var failed []FailedTable
	for _, schema := range schemas {
		s, err := translate.Table(schema, cfg)
		if err != nil {
			failed = append(failed, FailedTable{Table: schema.Name, Err: err})
			continue
		}
		stmts[schema.Name] = s
		planned = append(planned, schema)
	}
	return stmts, planned, failed
}

func createTable(
	ctx context.Context,
	cfg Config,
	target *dbconn.PGConn,
	schema *dbtable.TableSchema,
	phase1 []string,
) error {
	if cfg.DropExisting {
		if _, err := target.Exec(
			ctx, "DROP TABLE IF EXISTS "+lexbase.EscapeSQLIdent(string(schema.Name))+" CASCADE",
		); err != nil {
			return errors.Wrapf(err, "dropping table %s", schema.Name)
		}
		if cfg.Translate.TypeMap.EnumsAsNative {
			for _, col := range schema.Columns {
				if col.Type.Family != dbtable.FamilyEnum {
					continue
				}
				typeName := typemap.EnumTypeName(schema.Name, col.Name)
				if _, err := target.Exec(
					ctx, "DROP TYPE IF EXISTS "+lexbase.EscapeSQLIdent(string(typeName)),
				); err != nil {
					return errors.Wrapf(err, "dropping enum type %s", typeName)
				}
			}
		}
	}
	for _, stmt := range phase1 {
		if _, err := target.Exec(ctx, stmt); err != nil {
			return errors.Wrapf(err, "creating table %s", schema.Name)
		}
	}
	return nil
}

func migrateTable(
	ctx context.Context,
	cfg Config,
	logger zerolog.Logger,
	source *dbconn.MySQLConn,
	target *dbconn.PGConn,
	table *dbtable.TableSchema,
) (TableResult, error) {
	logger = logger.With().Str("table", string(table.Name)).Logger()
	logger.Info().Msg("migrating table")
	ret := TableResult{Table: table.Name}

	cfg.Load = cfg.loadConfigFor(table.Name)

	pr, pw := io.Pipe()
	reader := extract.NewRowReader(pr, table, cfg.Extract, logger)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := extract.Export(gCtx, source, table, pw, cfg.Extract)
		_ = pw.CloseWithError(err)
		if err != nil {
			return errors.Wrapf(err, "exporting table %s", table.Name)
		}
		logger.Debug().Int("rows", n).Msg("export complete")
		return nil
	})
	g.Go(func() error {
		res, err := load.Load(gCtx, target, logger, table, reader, cfg.Load)
		// Stop the exporter if the load aborts early.
		_ = pr.CloseWithError(err)
		ret.Load = res
		return err
	})
	if err := g.Wait(); err != nil {
		return ret, err
	}
	ret.Skipped = reader.Skipped()

	if cfg.Load.Identity == load.IdentityPreserve {
		// The COPY transaction has committed by now, so a flaky connection
		// here must not fail the table. Retry the setval instead.
		r, err := retry.NewRetry(retry.Settings{
			InitialBackoff: time.Second,
			Multiplier:     2,
			MaxBackoff:     30 * time.Second,
			MaxRetries:     5,
		})
		if err != nil {
			return ret, err
		}
		if err := r.Do(ctx, func() error {
			val, err := load.ReconcileSequence(ctx, target, table)
			if err != nil {
				return err
			}
			ret.SequenceValue = val
			return nil
		}, func(err error) {
			logger.Err(err).Msg("retrying sequence reconciliation")
		}); err != nil {
			return ret, err
		}
	}
	return ret, nil
}
