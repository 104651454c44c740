package dbconn

import (
	"context"

	"github.com/cockroachdb/cockroachdb-parser/pkg/sql/sem/tree"
	"github.com/jackc/pgx/v5"
)

type PGConn struct {
	id ID
	*pgx.Conn
	connStr string
}

var _ Conn = (*PGConn)(nil)

func ConnectPG(ctx context.Context, id ID, connStr string) (*PGConn, error) {
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		return nil, err
	}
	return NewPGConn(id, conn, connStr), nil
}

func ConnectPGConfig(ctx context.Context, id ID, cfg *pgx.ConnConfig) (*PGConn, error) {
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewPGConn(id, conn, cfg.ConnString()), nil
}

func NewPGConn(id ID, conn *pgx.Conn, connStr string) *PGConn {
	return &PGConn{
		id:      id,
		Conn:    conn,
		connStr: connStr,
	}
}

func (c *PGConn) ID() ID {
	return c.id
}

func (c *PGConn) Clone(ctx context.Context) (Conn, error) {
	conn, err := pgx.ConnectConfig(ctx, c.Config())
	if err != nil {
		return nil, err
	}
	return NewPGConn(c.id, conn, c.connStr), nil
}

func (c *PGConn) Database() tree.Name {
	return tree.Name(c.Config().Database)
}

func (c *PGConn) ConnStr() string {
	return c.connStr
}

func (c *PGConn) Dialect() string {
	return "PostgreSQL"
}
