package sessions

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	tenant_id  TEXT NOT NULL,
	call_id    TEXT NOT NULL,
	version    INTEGER NOT NULL,
	payload    BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (tenant_id, call_id)
);
`

// SQLStore is the durable backing store. It survives process restarts; the
// in-memory cache in front of it does not.
type SQLStore struct {
	db *sql.DB
}

// OpenSQL opens (creating if needed) the sqlite session database.
func OpenSQL(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Single writer; sqlite serializes anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Load(ctx context.Context, tenant, call string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM sessions WHERE tenant_id = ? AND call_id = ?`,
		tenant, call).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (s *SQLStore) Save(ctx context.Context, tenant, call string, payload []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (tenant_id, call_id, version, payload, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, call_id) DO UPDATE SET
		   version = excluded.version,
		   payload = excluded.payload,
		   updated_at = excluded.updated_at`,
		tenant, call, CurrentVersion, payload, time.Now().UTC())
	return err
}

func (s *SQLStore) Delete(ctx context.Context, tenant, call string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE tenant_id = ? AND call_id = ?`, tenant, call)
	return err
}

func (s *SQLStore) Close() error { return s.db.Close() }
