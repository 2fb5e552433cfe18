package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// New 创建 Postgres 连接池。池的大小等参数走 DSN（pool_max_conns=...）。
func New(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	return pgxpool.NewWithConfig(ctx, cfg)
}
