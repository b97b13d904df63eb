// Package keystore tracks pepper key metadata in a local sqlite database:
// which key ids exist, which one is active, and when retired keys were
// rotated out. It stores no key material — material lives with the cipher
// (keyring config, Vault, KMS); the store only provides the rotation
// bookkeeping behind cmd/hashx-admin.
package keystore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hengadev/hashx"
)

const schema = `
CREATE TABLE IF NOT EXISTS pepper_keys (
	key_id     TEXT PRIMARY KEY,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	active     BOOLEAN NOT NULL DEFAULT FALSE,
	retired_at TIMESTAMP
);
`

// Key is one pepper key's metadata record.
type Key struct {
	ID        string
	CreatedAt time.Time
	Active    bool
	RetiredAt sql.NullTime
}

// Store is a sqlite-backed pepper key registry. Safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the key registry at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", hashx.ErrKeystoreUnavailable, path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: pinging %s: %w", hashx.ErrKeystoreUnavailable, path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: initializing schema: %w", hashx.ErrKeystoreUnavailable, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Register records a new key id. The key starts inactive; call Activate to
// make it the one new hashes are encrypted under.
func (s *Store) Register(ctx context.Context, keyID string) error {
	if !hashx.ValidKeyID(keyID) {
		return fmt.Errorf("%w: invalid key id %q", hashx.ErrInvalidConfiguration, keyID)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO pepper_keys (key_id) VALUES (?)
	`, keyID); err != nil {
		return fmt.Errorf("%w: registering key %q: %w", hashx.ErrKeystoreUnavailable, keyID, err)
	}
	return nil
}

// RegisterGenerated registers a fresh random key id and returns it.
func (s *Store) RegisterGenerated(ctx context.Context) (string, error) {
	keyID := uuid.NewString()
	if err := s.Register(ctx, keyID); err != nil {
		return "", err
	}
	return keyID, nil
}

// Activate marks keyID active and retires the previously active key. The
// retired key's record is kept: its hashes stay decryptable by id until
// RecodeHash has migrated them all.
func (s *Store) Activate(ctx context.Context, keyID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", hashx.ErrKeystoreUnavailable, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE pepper_keys SET active = TRUE, retired_at = NULL
		WHERE key_id = ?
	`, keyID)
	if err != nil {
		return fmt.Errorf("%w: activating key %q: %w", hashx.ErrKeystoreUnavailable, keyID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", hashx.ErrKeystoreUnavailable, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %q", hashx.ErrKeyNotFound, keyID)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE pepper_keys SET active = FALSE, retired_at = CURRENT_TIMESTAMP
		WHERE active = TRUE AND key_id != ?
	`, keyID); err != nil {
		return fmt.Errorf("%w: retiring previous key: %w", hashx.ErrKeystoreUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", hashx.ErrKeystoreUnavailable, err)
	}

	log.Printf("pepper key %q is now active", keyID)
	return nil
}

// ActiveKeyID returns the id of the currently active key, or ErrNoActiveKey
// when none has been activated yet.
func (s *Store) ActiveKeyID(ctx context.Context) (string, error) {
	var keyID string
	err := s.db.QueryRowContext(ctx, `
		SELECT key_id FROM pepper_keys WHERE active = TRUE
	`).Scan(&keyID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", hashx.ErrNoActiveKey
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", hashx.ErrKeystoreUnavailable, err)
	}
	return keyID, nil
}

// Keys lists every registered key, oldest first.
func (s *Store) Keys(ctx context.Context) ([]Key, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key_id, created_at, active, retired_at
		FROM pepper_keys ORDER BY created_at, key_id
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", hashx.ErrKeystoreUnavailable, err)
	}
	defer rows.Close()

	var keys []Key
	for rows.Next() {
		var k Key
		if err := rows.Scan(&k.ID, &k.CreatedAt, &k.Active, &k.RetiredAt); err != nil {
			return nil, fmt.Errorf("%w: %w", hashx.ErrKeystoreUnavailable, err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", hashx.ErrKeystoreUnavailable, err)
	}
	return keys, nil
}
