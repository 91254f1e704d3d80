package repository

import (
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"
)

const driverName = "sqlite3_huddle"

var registerOnce sync.Once

func regex(re, s string) (bool, error) {
	return regexp.MatchString(re, s)
}

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT    NOT NULL UNIQUE,
	name        TEXT    NOT NULL,
	type        TEXT    NOT NULL,
	creator     TEXT    NOT NULL,
	description TEXT    NOT NULL DEFAULT '',
	capacity    INTEGER NOT NULL,
	active      INTEGER NOT NULL DEFAULT 1,
	created_at  INTEGER NOT NULL,
	UNIQUE (name, type)
);
CREATE TABLE IF NOT EXISTS room_members (
	room_id  TEXT    NOT NULL REFERENCES rooms (id),
	user_id  TEXT    NOT NULL,
	is_admin INTEGER NOT NULL DEFAULT 0,
	added_at INTEGER NOT NULL,
	PRIMARY KEY (room_id, user_id)
);
CREATE TABLE IF NOT EXISTS messages (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT    NOT NULL UNIQUE,
	room_id     TEXT    NOT NULL REFERENCES rooms (id),
	sender      TEXT    NOT NULL,
	sender_name TEXT    NOT NULL DEFAULT '',
	content     TEXT    NOT NULL DEFAULT '',
	kind        TEXT    NOT NULL,
	reply_to    TEXT    NOT NULL DEFAULT '',
	image_url   TEXT    NOT NULL DEFAULT '',
	file_url    TEXT    NOT NULL DEFAULT '',
	edited      INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_room_created ON messages (room_id, created_at);
CREATE TABLE IF NOT EXISTS message_hidden (
	message_id TEXT NOT NULL REFERENCES messages (id),
	user_id    TEXT NOT NULL,
	PRIMARY KEY (message_id, user_id)
);
CREATE TABLE IF NOT EXISTS invitations (
	id         TEXT    PRIMARY KEY,
	room_id    TEXT    NOT NULL REFERENCES rooms (id),
	inviter    TEXT    NOT NULL,
	invitee    TEXT    NOT NULL,
	token      TEXT    NOT NULL UNIQUE,
	expires_at INTEGER NOT NULL,
	accepted   INTEGER NOT NULL DEFAULT 0,
	declined   INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	CHECK (NOT (accepted = 1 AND declined = 1))
);
CREATE INDEX IF NOT EXISTS idx_invitations_room_invitee ON invitations (room_id, invitee);
CREATE TABLE IF NOT EXISTS calls (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT    NOT NULL UNIQUE,
	room_id     TEXT    NOT NULL REFERENCES rooms (id),
	caller      TEXT    NOT NULL,
	receiver    TEXT    NOT NULL,
	call_type   TEXT    NOT NULL,
	status      TEXT    NOT NULL,
	started_at  INTEGER NOT NULL,
	answered_at INTEGER NOT NULL DEFAULT 0,
	ended_at    INTEGER NOT NULL DEFAULT 0,
	duration    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_calls_caller ON calls (caller, started_at);
CREATE INDEX IF NOT EXISTS idx_calls_receiver ON calls (receiver, started_at);
`

// Open opens the sqlite database at path (":memory:" for tests) and applies the schema.
func Open(path string) (*sql.DB, error) {
	registerOnce.Do(func() {
		sql.Register(driverName,
			&sqlite3.SQLiteDriver{
				ConnectHook: func(conn *sqlite3.SQLiteConn) error {
					return conn.RegisterFunc("regexp", regex, true)
				},
			})
	})

	dsn := path
	if path != ":memory:" && !strings.Contains(path, "?") {
		dsn = fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", path)
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	// sqlite serializes writers; a single connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return db, nil
}

type Repository struct {
	db  *sql.DB
	now func() time.Time

	// guards entropy and serializes message appends
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func NewRepository(db *sql.DB) *Repository {
	return NewRepositoryWithClock(db, time.Now)
}

func NewRepositoryWithClock(db *sql.DB, now func() time.Time) *Repository {
	return &Repository{
		db:      db,
		now:     now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// newID must be called with r.mu held.
func (r *Repository) newID(t time.Time) (string, error) {
	id, err := ulid.New(ulid.Timestamp(t), r.entropy)
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}
	return id.String(), nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func toNanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
