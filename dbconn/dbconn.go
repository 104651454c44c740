package dbconn

import (
	"context"
	"net/url"
	"strings"

	"github.com/cockroachdb/cockroachdb-parser/pkg/sql/lexbase"
	"github.com/cockroachdb/cockroachdb-parser/pkg/sql/sem/tree"
	"github.com/cockroachdb/errors"
)

type ID string

// OrderedConns is the pair of connections a migration acts on:
// index 0 is the source, index 1 is the target.
type OrderedConns [2]Conn

type Conn interface {
	ID() ID
	// Close closes the connection.
	Close(ctx context.Context) error
	// Clone creates a new Conn with the same underlying connection arguments.
	Clone(ctx context.Context) (Conn, error)
	Database() tree.Name

	ConnStr() string
	Dialect() string
}

func Connect(ctx context.Context, preferredID ID, connStr string) (Conn, error) {
	id := preferredID
	if len(connStr) == 0 {
		return nil, errors.Newf("empty connection string")
	}

	before := strings.SplitN(connStr, "://", 2)

	switch {
	case strings.Contains(before[0], "postgres"):
		u, err := url.Parse(connStr)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to parse url: %s", connStr)
		}

		if id == "" {
			id = ID(u.Hostname() + ":" + u.Port())
		}
		return ConnectPG(ctx, id, connStr)
	case strings.Contains(before[0], "mysql"):
		return ConnectMySQL(ctx, id, connStr)
	}
	return nil, errors.Newf("unrecognised scheme %s from %s", before[0], connStr)
}

// TestOnlyCleanDatabase returns a connection to a clean database.
// This is recommended for test use only.
func TestOnlyCleanDatabase(ctx context.Context, id ID, url string, dbName string) (Conn, error) {
	c, err := Connect(ctx, id, url)
	if err != nil {
		return nil, err
	}
	defer func() { _ = c.Close(ctx) }()

	switch c := c.(type) {
	case *PGConn:
		if _, err := c.Exec(ctx, "DROP DATABASE IF EXISTS "+lexbase.EscapeSQLIdent(dbName)); err != nil {
			return nil, err
		}
		if _, err := c.Exec(ctx, "CREATE DATABASE "+lexbase.EscapeSQLIdent(dbName)); err != nil {
			return nil, err
		}
		cfgCopy := c.Config().Copy()
		cfgCopy.Database = dbName
		return ConnectPGConfig(ctx, c.id, cfgCopy)
	case *MySQLConn:
		quoted := "`" + strings.ReplaceAll(dbName, "`", "``") + "`"
		if _, err := c.ExecContext(ctx, "DROP DATABASE IF EXISTS "+quoted); err != nil {
			return nil, err
		}
		if _, err := c.ExecContext(ctx, "CREATE DATABASE "+quoted); err != nil {
			return nil, err
		}
		cfg, err := parseMySQLDSN(c.connStr)
		if err != nil {
			return nil, err
		}
		cfg.DBName = dbName
		return ConnectMySQL(ctx, c.id, cfg.FormatDSN())
	}
	return nil, errors.AssertionFailedf("clean database not supported for %T", c)
}
