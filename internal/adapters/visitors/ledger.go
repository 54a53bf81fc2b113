// Package visitors keeps a small ledger of the names greeted by the service.
package visitors

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const schema = `CREATE TABLE IF NOT EXISTS visits (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	visited_at TIMESTAMP NOT NULL
)`

// Visit is one greeting served by the meet route.
type Visit struct {
	Name      string    `json:"name"`
	VisitedAt time.Time `json:"visited_at"`
}

// Ledger stores visits in a SQL database.
type Ledger struct {
	db *sql.DB
}

// NewLedger prepares the schema on db.
func NewLedger(ctx context.Context, db *sql.DB) (*Ledger, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("create visits table: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Record stores a visit by name.
func (l *Ledger) Record(ctx context.Context, name string) error {
	_, err := l.db.ExecContext(ctx, "INSERT INTO visits (name, visited_at) VALUES (?, ?)", name, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record visit: %w", err)
	}
	return nil
}

// Recent returns up to limit visits, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Visit, error) {
	rows, err := l.db.QueryContext(ctx, "SELECT name, visited_at FROM visits ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query visits: %w", err)
	}
	defer rows.Close()

	visits := []Visit{}
	for rows.Next() {
		var v Visit
		if err := rows.Scan(&v.Name, &v.VisitedAt); err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		visits = append(visits, v)
	}
	return visits, rows.Err()
}
