// Package sqlite is a core.Storage persisted in a single SQLite file using
// the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hupe1980/eduswarm/core"
	_ "modernc.org/sqlite"
)

// Store implements core.Storage, core.GraphReader and core.NodeDeactivator.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at dbPath and ensures the
// schema exists.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS learning_sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		ended_at INTEGER,
		topics_covered TEXT,
		session_summary TEXT,
		status TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON learning_sessions(user_id, started_at);

	CREATE TABLE IF NOT EXISTS swarm_nodes (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES learning_sessions(id),
		user_id TEXT NOT NULL,
		node_type TEXT NOT NULL,
		node_content TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		metadata TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_nodes_session ON swarm_nodes(session_id, active);

	CREATE TABLE IF NOT EXISTS thought_connections (
		id TEXT PRIMARY KEY,
		source_node_id TEXT NOT NULL REFERENCES swarm_nodes(id),
		target_node_id TEXT NOT NULL REFERENCES swarm_nodes(id),
		connection_type TEXT NOT NULL,
		connection_strength REAL CHECK (connection_strength BETWEEN 0 AND 1),
		metadata TEXT,
		created_at INTEGER NOT NULL,
		UNIQUE(source_node_id, target_node_id)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateSession inserts an active session.
func (s *Store) CreateSession(ctx context.Context, userID, agentID string) (*core.SessionRecord, error) {
	rec := &core.SessionRecord{
		ID:             core.NewID(),
		UserID:         userID,
		PrimaryAgentID: agentID,
		StartTime:      time.Now(),
		Status:         core.SessionActive,
	}
	query := `INSERT INTO learning_sessions (id, user_id, agent_id, started_at, status) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, rec.ID, userID, agentID, rec.StartTime.UnixNano(), string(rec.Status)); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return rec, nil
}

// EndSession stores end time, summary and topics and completes the session.
func (s *Store) EndSession(ctx context.Context, sessionID, summary string, topics []string) (*core.SessionRecord, error) {
	if topics == nil {
		topics = []string{}
	}
	topicsJSON, err := json.Marshal(topics)
	if err != nil {
		return nil, fmt.Errorf("encode topics: %w", err)
	}

	query := `UPDATE learning_sessions SET ended_at = ?, session_summary = ?, topics_covered = ?, status = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, time.Now().UnixNano(), summary, string(topicsJSON), string(core.SessionCompleted), sessionID)
	if err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("session %s: %w", sessionID, core.ErrNotFound)
	}

	row := s.db.QueryRowContext(ctx, sessionSelect+` WHERE id = ?`, sessionID)
	return scanSession(row)
}

// RecentSessions returns up to limit sessions of userID, newest first.
func (s *Store) RecentSessions(ctx context.Context, userID string, limit int) ([]core.SessionRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, sessionSelect+` WHERE user_id = ? ORDER BY started_at DESC, rowid DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	out := []core.SessionRecord{}
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

const sessionSelect = `SELECT id, user_id, agent_id, started_at, ended_at, topics_covered, session_summary, status FROM learning_sessions`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*core.SessionRecord, error) {
	var (
		rec       core.SessionRecord
		startedAt int64
		endedAt   sql.NullInt64
		topics    sql.NullString
		summary   sql.NullString
		status    string
	)
	err := row.Scan(&rec.ID, &rec.UserID, &rec.PrimaryAgentID, &startedAt, &endedAt, &topics, &summary, &status)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	rec.StartTime = time.Unix(0, startedAt)
	if endedAt.Valid {
		end := time.Unix(0, endedAt.Int64)
		rec.EndTime = &end
	}
	if topics.Valid && topics.String != "" {
		if err := json.Unmarshal([]byte(topics.String), &rec.TopicsCovered); err != nil {
			return nil, fmt.Errorf("decode topics: %w", err)
		}
	}
	rec.Summary = summary.String
	rec.Status = core.SessionStatus(status)
	return &rec, nil
}

// CreateNode inserts an active node.
func (s *Store) CreateNode(ctx context.Context, sessionID, userID string, typ core.NodeType, content string, metadata map[string]any) (*core.Node, error) {
	md, err := encodeMetadata(metadata)
	if err != nil {
		return nil, err
	}
	n := &core.Node{
		ID:        core.NewID(),
		SessionID: sessionID,
		UserID:    userID,
		Type:      typ,
		Content:   content,
		Metadata:  metadata,
		Active:    true,
		CreatedAt: time.Now(),
	}
	query := `
	INSERT INTO swarm_nodes (id, session_id, user_id, node_type, node_content, active, metadata, created_at)
	VALUES (?, ?, ?, ?, ?, 1, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, n.ID, sessionID, userID, string(typ), content, md, n.CreatedAt.UnixNano()); err != nil {
		if isConstraint(err, "FOREIGN KEY") {
			return nil, fmt.Errorf("session %s: %w", sessionID, core.ErrNotFound)
		}
		return nil, fmt.Errorf("insert node: %w", err)
	}
	return n, nil
}

// DeactivateNode clears the active flag of a node.
func (s *Store) DeactivateNode(ctx context.Context, nodeID string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE swarm_nodes SET active = 0 WHERE id = ?`, nodeID)
	if err != nil {
		return fmt.Errorf("deactivate node: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("node %s: %w", nodeID, core.ErrNotFound)
	}
	return nil
}

// SessionNodes returns the active nodes of a session in creation order.
func (s *Store) SessionNodes(ctx context.Context, sessionID string) ([]core.Node, error) {
	query := `
	SELECT id, session_id, user_id, node_type, node_content, active, metadata, created_at
	FROM swarm_nodes WHERE session_id = ? AND active = 1 ORDER BY created_at, rowid`
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer rows.Close()

	out := []core.Node{}
	for rows.Next() {
		var (
			n         core.Node
			typ       string
			active    int
			md        sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&n.ID, &n.SessionID, &n.UserID, &typ, &n.Content, &active, &md, &createdAt); err != nil {
			return nil, fmt.Errorf("scan node row: %w", err)
		}
		n.Type = core.NodeType(typ)
		n.Active = active != 0
		n.CreatedAt = time.Unix(0, createdAt)
		if n.Metadata, err = decodeMetadata(md); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// ConnectNodes inserts a connection. A second connection between the same
// ordered pair fails with core.ErrDuplicateEdge.
func (s *Store) ConnectNodes(ctx context.Context, sourceID, targetID string, typ core.EdgeType, strength float64, metadata map[string]any) (*core.Edge, error) {
	if strength < 0 || strength > 1 {
		return nil, fmt.Errorf("connection strength %v out of range [0,1]", strength)
	}
	md, err := encodeMetadata(metadata)
	if err != nil {
		return nil, err
	}
	e := &core.Edge{
		ID:        core.NewID(),
		SourceID:  sourceID,
		TargetID:  targetID,
		Type:      typ,
		Strength:  strength,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}
	query := `
	INSERT INTO thought_connections (id, source_node_id, target_node_id, connection_type, connection_strength, metadata, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, e.ID, sourceID, targetID, string(typ), strength, md, e.CreatedAt.UnixNano()); err != nil {
		switch {
		case isConstraint(err, "UNIQUE"):
			return nil, fmt.Errorf("%s -> %s: %w", sourceID, targetID, core.ErrDuplicateEdge)
		case isConstraint(err, "FOREIGN KEY"):
			return nil, fmt.Errorf("%s -> %s: %w", sourceID, targetID, core.ErrNotFound)
		}
		return nil, fmt.Errorf("insert connection: %w", err)
	}
	return e, nil
}

// ConnectedEdges returns the edges leaving nodeID.
func (s *Store) ConnectedEdges(ctx context.Context, nodeID string) ([]core.Edge, error) {
	query := `
	SELECT id, source_node_id, target_node_id, connection_type, connection_strength, metadata, created_at
	FROM thought_connections WHERE source_node_id = ? ORDER BY created_at, rowid`
	rows, err := s.db.QueryContext(ctx, query, nodeID)
	if err != nil {
		return nil, fmt.Errorf("query connections: %w", err)
	}
	defer rows.Close()

	out := []core.Edge{}
	for rows.Next() {
		var (
			e         core.Edge
			typ       string
			md        sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.SourceID, &e.TargetID, &typ, &e.Strength, &md, &createdAt); err != nil {
			return nil, fmt.Errorf("scan connection row: %w", err)
		}
		e.Type = core.EdgeType(typ)
		e.CreatedAt = time.Unix(0, createdAt)
		if e.Metadata, err = decodeMetadata(md); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func encodeMetadata(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}

func decodeMetadata(s sql.NullString) (map[string]any, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return m, nil
}

func isConstraint(err error, kind string) bool {
	return strings.Contains(err.Error(), kind+" constraint failed")
}
