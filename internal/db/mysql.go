package db

import (
	"context"
	"database/sql"
	"fmt"

	"grading-assistant-core/internal/config"

	_ "github.com/go-sql-driver/mysql"
)

func NewConnection(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DatabaseDSN())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxConnections)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.Database.ConnectionLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS grading_records (
		owner        VARCHAR(255)  NOT NULL,
		id           VARCHAR(128)  NOT NULL,
		question_key VARCHAR(512)  NOT NULL DEFAULT '',
		question_no  VARCHAR(64)   NOT NULL DEFAULT '',
		student_name VARCHAR(256)  NOT NULL DEFAULT '',
		score        DOUBLE        NOT NULL DEFAULT 0,
		max_score    DOUBLE        NOT NULL DEFAULT 0,
		comment      TEXT          NULL,
		breakdown    JSON          NULL,
		ts           BIGINT        NOT NULL,
		created_at   TIMESTAMP     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (owner, id),
		KEY idx_records_question_key (owner, question_key(191)),
		KEY idx_records_question_no (owner, question_no),
		KEY idx_records_ts (owner, ts)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS idempotency_keys (
		owner         VARCHAR(255) NOT NULL,
		idem_key      VARCHAR(128) NOT NULL,
		created_count INT          NOT NULL DEFAULT 0,
		created_at    TIMESTAMP    NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (owner, idem_key)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// EnsureSchema creates the record and idempotency tables if missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
