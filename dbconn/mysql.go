package dbconn

import (
	"context"
	"database/sql"
	"strings"

	"github.com/cockroachdb/cockroachdb-parser/pkg/sql/sem/tree"
	"github.com/cockroachdb/errors"
	mysqldriver "github.com/go-sql-driver/mysql"
)

type MySQLConn struct {
	id      ID
	connStr string
	*sql.DB
	database tree.Name
}

var _ Conn = (*MySQLConn)(nil)

func ConnectMySQL(ctx context.Context, id ID, connStr string) (*MySQLConn, error) {
	cfg, err := parseMySQLDSN(connStr)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, errors.CombineErrors(err, db.Close())
	}
	return &MySQLConn{id: id, connStr: connStr, DB: db, database: tree.Name(cfg.DBName)}, nil
}

// parseMySQLDSN accepts both the go-sql-driver DSN form and a mysql:// URL
// prefix on top of it.
func parseMySQLDSN(connStr string) (*mysqldriver.Config, error) {
	byProtocol := strings.SplitN(connStr, "://", 2)
	cfg, err := mysqldriver.ParseDSN(byProtocol[len(byProtocol)-1])
	if err != nil {
		return nil, errors.Wrapf(err, "error parsing DSN for %q", connStr)
	}
	return cfg, nil
}

func (c *MySQLConn) ID() ID {
	return c.id
}

func (c *MySQLConn) Close(ctx context.Context) error {
	return c.DB.Close()
}

func (c *MySQLConn) Clone(ctx context.Context) (Conn, error) {
	return ConnectMySQL(ctx, c.id, c.connStr)
}

func (c *MySQLConn) Database() tree.Name {
	return c.database
}

func (c *MySQLConn) ConnStr() string {
	return c.connStr
}

func (c *MySQLConn) Dialect() string {
	return "MySQL"
}
