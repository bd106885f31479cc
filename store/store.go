// Package store persists peer records across restarts: a SQLite table
// of the records' binary blobs, keyed by peer identity.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/HondouKoSuke/ZeroTierOne/node"
	"github.com/HondouKoSuke/ZeroTierOne/types/bin"
	"github.com/HondouKoSuke/ZeroTierOne/types/key"
	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("store: peer not found")

var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS peers (
  identity   TEXT PRIMARY KEY,
  record     BLOB NOT NULL,
  updated_at INTEGER NOT NULL
);
`,
	`
CREATE INDEX IF NOT EXISTS idx_peers_updated_at
ON peers (updated_at DESC);
`,
}

// Store is a thin wrapper around a SQLite connection.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the peer cache at path and runs migrations.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	s := &Store{db: db}
	if err := s.applyMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) applyMigrations() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if version >= len(migrations) {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i := version; i < len(migrations); i++ {
		if _, err := tx.Exec(migrations[i]); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d;", i+1)); err != nil {
			return fmt.Errorf("set schema version %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration transaction: %w", err)
	}

	return nil
}

// SavePeer upserts the record's current binary form.
func (s *Store) SavePeer(p *node.Peer, now time.Time) error {
	blob, err := p.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode peer: %w", err)
	}

	_, err = s.db.Exec(`
INSERT INTO peers (identity, record, updated_at) VALUES (?, ?, ?)
ON CONFLICT(identity) DO UPDATE SET record = excluded.record, updated_at = excluded.updated_at;
`, p.Identity().HexString(), blob, bin.TimeToMillis(now))
	if err != nil {
		return fmt.Errorf("save peer: %w", err)
	}

	return nil
}

// LoadPeer restores one record. Decode failures surface as-is: a blob
// with a stale serialization version is the caller's cue to discard
// and rebuild that peer.
func (s *Store) LoadPeer(id key.NodePublic) (*node.Peer, error) {
	var blob []byte

	err := s.db.QueryRow(`SELECT record FROM peers WHERE identity = ?;`, id.HexString()).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load peer: %w", err)
	}

	return node.DecodePeer(blob)
}

// LoadAll restores every stored record into tbl, skipping (and
// counting) the ones that no longer decode.
func (s *Store) LoadAll(tbl *node.Table) (loaded, skipped int, err error) {
	rows, err := s.db.Query(`SELECT identity, record FROM peers;`)
	if err != nil {
		return 0, 0, fmt.Errorf("load peers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var identity string
		var blob []byte
		if err := rows.Scan(&identity, &blob); err != nil {
			return loaded, skipped, fmt.Errorf("load peers: %w", err)
		}

		p, err := node.DecodePeer(blob)
		if err != nil {
			skipped++
			continue
		}

		if err := tbl.Add(p); err != nil {
			skipped++
			continue
		}
		loaded++
	}

	return loaded, skipped, rows.Err()
}

func (s *Store) DeletePeer(id key.NodePublic) error {
	_, err := s.db.Exec(`DELETE FROM peers WHERE identity = ?;`, id.HexString())
	if err != nil {
		return fmt.Errorf("delete peer: %w", err)
	}
	return nil
}
