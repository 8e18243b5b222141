package config

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/widgetwatch/watch"
)

// Schema for the chat_pages table.
const Schema = `
CREATE TABLE IF NOT EXISTS chat_pages (
	id         TEXT PRIMARY KEY,
	url        TEXT NOT NULL,
	stealth    TEXT DEFAULT '',
	status     TEXT DEFAULT 'active',
	updated_at INTEGER NOT NULL
);
`

// LoadPages reads all active pages from the registry.
func LoadPages(ctx context.Context, db *sql.DB) ([]PageConfig, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, url, stealth
		FROM chat_pages
		WHERE status = 'active'
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("config: query pages: %w", err)
	}
	defer rows.Close()

	var pages []PageConfig
	for rows.Next() {
		var p PageConfig
		if err := rows.Scan(&p.ID, &p.URL, &p.Stealth); err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// PollPages calls onChange with the active pages once at start and then
// every time the registry's data version moves. It blocks until ctx is
// cancelled. Load errors are logged and retried on the next tick.
func PollPages(ctx context.Context, db *sql.DB, interval time.Duration, logger *slog.Logger, onChange func([]PageConfig)) {
	w := watch.New(db, watch.Options{Interval: interval, Logger: logger})
	w.Run(ctx, func(ctx context.Context) error {
		pages, err := LoadPages(ctx, db)
		if err != nil {
			return fmt.Errorf("config: load registry: %w", err)
		}
		onChange(pages)
		return nil
	})
}
