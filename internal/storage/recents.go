// Package storage keeps the client's local convenience state. Nothing
// here holds transcript content; message history always comes from the
// server. The only table records which sessions were opened against
// which server, so the picker can rank them and startup can reopen the
// last one.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// RecentSession 记录最近打开过的会话标识（不含消息内容）。
// RecentSession records a recently opened session id (no message content).
type RecentSession struct {
	ServerURL    string
	SessionID    string
	Title        string
	Agent        string
	Provider     string
	Model        string
	LastOpenedAt time.Time
}

// RecentStore 基于 SQLite (WAL 模式) 的本地状态存储
// RecentStore implements local state storage using SQLite with WAL mode
type RecentStore struct {
	db   *sql.DB
	path string
}

// OpenRecentStore 创建并初始化 SQLite 数据库
// OpenRecentStore creates and initializes a SQLite database
func OpenRecentStore(dbPath string) (*RecentStore, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// 启用 WAL 模式和优化 PRAGMA / Enable WAL and performance PRAGMAs
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	store := &RecentStore{db: db, path: dbPath}
	if err := store.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, nil
}

func (s *RecentStore) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS recent_sessions (
		server_url     TEXT NOT NULL,
		session_id     TEXT NOT NULL,
		title          TEXT NOT NULL DEFAULT '',
		agent          TEXT NOT NULL DEFAULT '',
		provider       TEXT NOT NULL DEFAULT '',
		model          TEXT NOT NULL DEFAULT '',
		last_opened_at INTEGER NOT NULL,
		PRIMARY KEY(server_url, session_id)
	);

	CREATE INDEX IF NOT EXISTS idx_recent_sessions_opened
		ON recent_sessions(server_url, last_opened_at DESC);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Touch 记录一次会话打开；已存在则更新时间戳与元数据。
// Touch records a session open; updates timestamp and metadata if present.
func (s *RecentStore) Touch(rec RecentSession) error {
	if strings.TrimSpace(rec.ServerURL) == "" || strings.TrimSpace(rec.SessionID) == "" {
		return fmt.Errorf("server url and session id are required")
	}
	_, err := s.db.Exec(`
		INSERT INTO recent_sessions (server_url, session_id, title, agent, provider, model, last_opened_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(server_url, session_id) DO UPDATE SET
			title = excluded.title,
			agent = excluded.agent,
			provider = excluded.provider,
			model = excluded.model,
			last_opened_at = excluded.last_opened_at
	`, rec.ServerURL, rec.SessionID, rec.Title, rec.Agent, rec.Provider, rec.Model, nowMillis())
	if err != nil {
		return fmt.Errorf("record recent session: %w", err)
	}
	return nil
}

// Recent 返回某服务器上最近打开的会话，按时间倒序。
// Recent returns recently opened sessions for a server, newest first.
func (s *RecentStore) Recent(serverURL string, limit int) ([]RecentSession, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT server_url, session_id, title, agent, provider, model, last_opened_at
		FROM recent_sessions
		WHERE server_url = ?
		ORDER BY last_opened_at DESC
		LIMIT ?
	`, serverURL, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent sessions: %w", err)
	}
	defer rows.Close()

	var out []RecentSession
	for rows.Next() {
		var rec RecentSession
		var opened int64
		if err := rows.Scan(&rec.ServerURL, &rec.SessionID, &rec.Title, &rec.Agent, &rec.Provider, &rec.Model, &opened); err != nil {
			return nil, fmt.Errorf("scan recent session: %w", err)
		}
		rec.LastOpenedAt = time.UnixMilli(opened)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Last 返回某服务器最近一次打开的会话 id；没有记录返回空串。
// Last returns the most recently opened session id for a server, "" if none.
func (s *RecentStore) Last(serverURL string) (string, error) {
	var id string
	err := s.db.QueryRow(`
		SELECT session_id FROM recent_sessions
		WHERE server_url = ?
		ORDER BY last_opened_at DESC
		LIMIT 1
	`, serverURL).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query last session: %w", err)
	}
	return id, nil
}

// Forget 删除一条记录（会话在服务端被删除后调用）。
// Forget removes one record (after the session was deleted server-side).
func (s *RecentStore) Forget(serverURL, sessionID string) error {
	if _, err := s.db.Exec(`
		DELETE FROM recent_sessions WHERE server_url = ? AND session_id = ?
	`, serverURL, sessionID); err != nil {
		return fmt.Errorf("forget session: %w", err)
	}
	return nil
}

// Close 关闭数据库连接
// Close closes the database connection
func (s *RecentStore) Close() error {
	return s.db.Close()
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
