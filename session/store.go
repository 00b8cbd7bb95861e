// SPDX-License-Identifier: ice License 1.0

package session

import (
	"context"
	"database/sql"
	_ "embed"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Store is the persisted key/value credential storage. Values are
// opaque strings; absence is not an error.
type Store struct {
	db *sqlx.DB
}

const (
	StoreKeyLocalSecretKey        = "local_secret_key"
	StoreKeyRemoteClientSecretKey = "remote_session_secret_key"
	StoreKeyRemoteToken           = "remote_connection_token"
	StoreKeyRemoteSignerPubKey    = "remote_signer_pubkey"
)

//go:embed DDL.sql
var ddl string

func OpenStore(target string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", target)
	if err != nil {
		return nil, errors.Wrapf(err, "can't open credential store at %v", target)
	}
	if _, err = db.Exec(ddl); err != nil {
		return nil, errors.Wrapf(err, "can't run credential store DDL at %v", target)
	}

	return &Store{db: db}, nil
}

func (s *Store) Save(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO credentials(key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)

	return errors.Wrapf(err, "can't save credential %v", key)
}

// Load fetches a credential; a missing key yields "" with no error.
func (s *Store) Load(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.GetContext(ctx, &value, `SELECT value FROM credentials WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}

	return value, errors.Wrapf(err, "can't load credential %v", key)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE key = ?`, key)

	return errors.Wrapf(err, "can't delete credential %v", key)
}

// Clear wipes every credential (logout).
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM credentials`)

	return errors.Wrap(err, "can't clear credentials")
}

func (s *Store) Close() error {
	return errors.Wrap(s.db.Close(), "can't close credential store")
}
