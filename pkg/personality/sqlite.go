package personality

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/iguit0/ai-chatbot-personality/pkg/api"
	"github.com/iguit0/ai-chatbot-personality/pkg/types"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const sqlitePersonalitiesSchemaV1 = `
CREATE TABLE IF NOT EXISTS personalities (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    payload_json TEXT NOT NULL,
    updated_at_ms INTEGER NOT NULL DEFAULT 0
);
`

// SQLiteRepository keeps one JSON payload per personality row. Rows are listed
// in insertion order.
type SQLiteRepository struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

var _ Repository = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dsn string) (*SQLiteRepository, error) {
	if dsn == "" {
		return nil, fmt.Errorf("sqlite personality repository: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	r := &SQLiteRepository{db: db}
	if err := r.migrate(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "could not migrate personality schema")
	}
	return r, nil
}

// SQLiteDSNForFile builds a DSN for a database file with WAL and a busy timeout.
func SQLiteDSNForFile(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("sqlite personality repository: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path), nil
}

func (r *SQLiteRepository) migrate() error {
	_, err := r.db.Exec(sqlitePersonalitiesSchemaV1)
	return err
}

func (r *SQLiteRepository) List(ctx context.Context) ([]types.Personality, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.ensureOpen(); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `SELECT id, payload_json FROM personalities ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []types.Personality
	for rows.Next() {
		var id string
		var payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		var p types.Personality
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, errors.Wrapf(err, "corrupt personality row %q", id)
		}
		if p.ID == "" {
			p.ID = id
		}
		if p.ID != id {
			return nil, fmt.Errorf("sqlite personality repository: id mismatch payload=%q row=%q", p.ID, id)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) Create(ctx context.Context, p types.Personality) error {
	if p.ID == "" {
		return &api.ValidationError{Field: "id", Reason: "is required"}
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureOpen(); err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO personalities (id, payload_json, updated_at_ms) VALUES (?, ?, ?)`,
		p.ID, string(payload), time.Now().UnixMilli(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return &api.ValidationError{Field: "id", Reason: fmt.Sprintf("personality %q already exists", p.ID)}
		}
		return err
	}
	return nil
}

func (r *SQLiteRepository) Update(ctx context.Context, id string, p types.Personality) error {
	p.ID = id
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureOpen(); err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE personalities SET payload_json = ?, updated_at_ms = ? WHERE id = ?`,
		string(payload), time.Now().UnixMilli(), id,
	)
	if err != nil {
		return err
	}
	return requireAffected(res, id)
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureOpen(); err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM personalities WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, id)
}

func (r *SQLiteRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.db.Close()
}

func (r *SQLiteRepository) ensureOpen() error {
	if r.closed {
		return fmt.Errorf("sqlite personality repository closed")
	}
	return nil
}

func requireAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &api.NotFoundError{Resource: "personality", ID: id}
	}
	return nil
}
