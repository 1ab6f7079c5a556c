package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Open connects to MySQL and verifies the connection.
func Open(user, pass, host, port, name string) (*sql.DB, error) {
	auth := user
	if pass != "" {
		auth = fmt.Sprintf("%s:%s", user, pass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, host, port, name)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// markupsDDL creates the markups table.  active_key is only populated for
// active rows, so the unique index permits any number of inactive rows per
// (owner, item) while refusing a second active one.
const markupsDDL = `CREATE TABLE IF NOT EXISTS markups (
    id                BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
    owner_user_id     BIGINT UNSIGNED NOT NULL,
    markable_type     VARCHAR(32)     NOT NULL,
    markable_id       BIGINT UNSIGNED NOT NULL,
    markup_percentage DECIMAL(8,2)    NULL,
    markup_amount     DECIMAL(12,2)   NULL,
    original_amount   DECIMAL(12,2)   NOT NULL,
    final_amount      DECIMAL(12,2)   NOT NULL,
    is_active         TINYINT(1)      NOT NULL DEFAULT 1,
    markup_token      CHAR(64)        NOT NULL,
    active_key        VARCHAR(96) AS (IF(is_active = 1, CONCAT(owner_user_id, ':', markable_type, ':', markable_id), NULL)) STORED,
    created_at        DATETIME        NOT NULL,
    updated_at        DATETIME        NOT NULL,
    PRIMARY KEY (id),
    UNIQUE KEY uq_markups_token (markup_token),
    UNIQUE KEY uq_markups_active (active_key),
    KEY idx_markups_item (markable_type, markable_id),
    KEY idx_markups_owner_item (owner_user_id, markable_type, markable_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

// Migrate creates the tables owned by this service.  Users and listing
// tables belong to the marketplace and are expected to exist already.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, markupsDDL); err != nil {
		return fmt.Errorf("migrate markups: %w", err)
	}
	return nil
}
