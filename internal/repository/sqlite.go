package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/maisonhq/chatcore/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			user_id TEXT,
			kind TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_activity_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_last_activity ON sessions(kind, last_activity_at)`,
		`CREATE TABLE IF NOT EXISTS general_conversations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL UNIQUE,
			user_id TEXT,
			is_logged_in INTEGER NOT NULL DEFAULT 0,
			started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_message_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			context TEXT,
			version INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_general_conversations_user ON general_conversations(user_id)`,
		`CREATE TABLE IF NOT EXISTS general_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			intent TEXT,
			metadata TEXT,
			FOREIGN KEY (conversation_id) REFERENCES general_conversations(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_general_messages_conversation ON general_messages(conversation_id, timestamp)`,
		`CREATE TABLE IF NOT EXISTS property_conversations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			property_id TEXT NOT NULL,
			role TEXT NOT NULL,
			counterpart_id TEXT NOT NULL,
			conversation_status TEXT NOT NULL DEFAULT 'active',
			started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_message_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			property_context TEXT,
			version INTEGER NOT NULL DEFAULT 0
		)`,
		// At most one open conversation per party triple and per session.
		// Closed conversations are retained for history and excluded here.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_property_conversations_open_triple
			ON property_conversations(user_id, property_id, counterpart_id)
			WHERE conversation_status != 'closed'`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_property_conversations_open_session
			ON property_conversations(session_id)
			WHERE conversation_status != 'closed'`,
		`CREATE INDEX IF NOT EXISTS idx_property_conversations_user ON property_conversations(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_property_conversations_counterpart ON property_conversations(counterpart_id)`,
		`CREATE TABLE IF NOT EXISTS property_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			intent TEXT,
			metadata TEXT,
			FOREIGN KEY (conversation_id) REFERENCES property_conversations(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_property_messages_conversation ON property_messages(conversation_id, timestamp)`,
		`CREATE TABLE IF NOT EXISTS external_references (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			general_conversation_id INTEGER,
			property_conversation_id INTEGER,
			service_name TEXT NOT NULL,
			external_id TEXT NOT NULL,
			reference_metadata TEXT,
			last_synced DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (general_conversation_id) REFERENCES general_conversations(id) ON DELETE CASCADE,
			FOREIGN KEY (property_conversation_id) REFERENCES property_conversations(id) ON DELETE CASCADE,
			CHECK ((general_conversation_id IS NULL) != (property_conversation_id IS NULL))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_external_references_external ON external_references(service_name, external_id)`,
		`CREATE TABLE IF NOT EXISTS property_questions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			property_id TEXT NOT NULL,
			buyer_id TEXT NOT NULL,
			seller_id TEXT NOT NULL,
			conversation_id INTEGER,
			question_text TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			answered_at DATETIME,
			answer_text TEXT,
			FOREIGN KEY (conversation_id) REFERENCES property_conversations(id) ON DELETE SET NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_property_questions_seller ON property_questions(seller_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_property_questions_buyer ON property_questions(buyer_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession creates a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, user_id, kind, created_at, last_activity_at) VALUES (?, ?, ?, ?, ?)`,
		session.SessionID, session.UserID, session.Kind, session.CreatedAt, session.LastActivityAt)
	return err
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var session domain.Session
	var userID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, user_id, kind, created_at, last_activity_at FROM sessions WHERE session_id = ?`,
		sessionID).Scan(&session.SessionID, &userID, &session.Kind, &session.CreatedAt, &session.LastActivityAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	session.UserID = userID.String
	return &session, nil
}

// TouchSession refreshes the session's last activity timestamp.
func (s *SQLiteStore) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET last_activity_at = ? WHERE session_id = ?`, at, sessionID)
	return err
}

// DeleteSession removes a single session row.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	return err
}

// DeleteExpiredSessions evicts expired sessions of one kind. Sessions owning
// an active or pending property conversation are exempt regardless of TTL.
func (s *SQLiteStore) DeleteExpiredSessions(ctx context.Context, kind domain.SessionKind, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions
		 WHERE kind = ? AND last_activity_at < ?
		   AND NOT EXISTS (
			SELECT 1 FROM property_conversations pc
			WHERE pc.session_id = sessions.session_id
			  AND pc.conversation_status IN ('active', 'pending')
		   )`,
		kind, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetOrCreateGeneralConversation returns the session's conversation, creating
// it lazily on first use. The UNIQUE constraint on session_id makes the
// create race-safe: a losing insert falls back to reading the winner's row.
func (s *SQLiteStore) GetOrCreateGeneralConversation(ctx context.Context, sessionID, userID string) (*domain.GeneralConversation, error) {
	conv, err := s.getGeneralConversationBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		return conv, nil
	}

	now := time.Now().UTC()
	emptyCtx, _ := json.Marshal(domain.ConversationContext{})
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO general_conversations (session_id, user_id, is_logged_in, started_at, last_message_at, context)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, nullableString(userID), userID != "", now, now, string(emptyCtx))
	if err != nil && !strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return nil, err
	}
	return s.getGeneralConversationBySession(ctx, sessionID)
}

func (s *SQLiteStore) getGeneralConversationBySession(ctx context.Context, sessionID string) (*domain.GeneralConversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, user_id, is_logged_in, started_at, last_message_at, context, version
		 FROM general_conversations WHERE session_id = ?`, sessionID)
	return scanGeneralConversation(row)
}

// GetGeneralConversation retrieves a general conversation by id.
func (s *SQLiteStore) GetGeneralConversation(ctx context.Context, id int64) (*domain.GeneralConversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, user_id, is_logged_in, started_at, last_message_at, context, version
		 FROM general_conversations WHERE id = ?`, id)
	return scanGeneralConversation(row)
}

func scanGeneralConversation(row *sql.Row) (*domain.GeneralConversation, error) {
	var conv domain.GeneralConversation
	var userID, contextJSON sql.NullString
	err := row.Scan(&conv.ID, &conv.SessionID, &userID, &conv.IsLoggedIn,
		&conv.StartedAt, &conv.LastMessageAt, &contextJSON, &conv.Version)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	conv.UserID = userID.String
	if contextJSON.Valid && contextJSON.String != "" {
		if err := json.Unmarshal([]byte(contextJSON.String), &conv.Context); err != nil {
			return nil, fmt.Errorf("failed to decode context: %w", err)
		}
	}
	return &conv, nil
}

// AppendGeneralTurn commits one turn atomically with a version guard.
func (s *SQLiteStore) AppendGeneralTurn(ctx context.Context, conversationID, version int64, userMsg, assistantMsg *domain.Message, merged domain.ConversationContext, at time.Time) error {
	return s.appendTurn(ctx, "general_messages", "general_conversations", "context",
		conversationID, version, userMsg, assistantMsg, merged, at)
}

// AppendPropertyTurn commits one property turn atomically with a version guard.
func (s *SQLiteStore) AppendPropertyTurn(ctx context.Context, conversationID, version int64, userMsg, assistantMsg *domain.Message, merged domain.ConversationContext, at time.Time) error {
	return s.appendTurn(ctx, "property_messages", "property_conversations", "property_context",
		conversationID, version, userMsg, assistantMsg, merged, at)
}

func (s *SQLiteStore) appendTurn(ctx context.Context, messagesTable, conversationsTable, contextColumn string, conversationID, version int64, userMsg, assistantMsg *domain.Message, merged domain.ConversationContext, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, msg := range []*domain.Message{userMsg, assistantMsg} {
		if msg == nil {
			continue
		}
		res, err := tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (conversation_id, role, content, timestamp, intent, metadata) VALUES (?, ?, ?, ?, ?, ?)`, messagesTable),
			conversationID, msg.Role, msg.Content, msg.Timestamp, nullableString(string(msg.Intent)), nullableString(string(msg.Metadata)))
		if err != nil {
			return err
		}
		msg.ID, _ = res.LastInsertId()
		msg.ConversationID = conversationID
	}

	contextJSON, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET %s = ?, last_message_at = ?, version = version + 1 WHERE id = ? AND version = ?`, conversationsTable, contextColumn),
		string(contextJSON), at, conversationID, version)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrConflict
	}

	return tx.Commit()
}

// ListGeneralMessages returns messages in canonical turn order.
func (s *SQLiteStore) ListGeneralMessages(ctx context.Context, conversationID int64) ([]domain.Message, error) {
	return s.listMessages(ctx, "general_messages", conversationID)
}

// ListPropertyMessages returns messages in canonical turn order.
func (s *SQLiteStore) ListPropertyMessages(ctx context.Context, conversationID int64) ([]domain.Message, error) {
	return s.listMessages(ctx, "property_messages", conversationID)
}

func (s *SQLiteStore) listMessages(ctx context.Context, table string, conversationID int64) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, conversation_id, role, content, timestamp, intent, metadata FROM %s WHERE conversation_id = ? ORDER BY timestamp ASC, id ASC`, table),
		conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		var intent, metadata sql.NullString
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.Timestamp, &intent, &metadata); err != nil {
			return nil, err
		}
		msg.Intent = domain.Intent(intent.String)
		if metadata.Valid {
			msg.Metadata = json.RawMessage(metadata.String)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// ListGeneralConversationsByUser lists general conversations owned by a user.
func (s *SQLiteStore) ListGeneralConversationsByUser(ctx context.Context, userID string) ([]domain.GeneralConversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, user_id, is_logged_in, started_at, last_message_at, context, version
		 FROM general_conversations WHERE user_id = ? ORDER BY last_message_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []domain.GeneralConversation
	for rows.Next() {
		var conv domain.GeneralConversation
		var uid, contextJSON sql.NullString
		if err := rows.Scan(&conv.ID, &conv.SessionID, &uid, &conv.IsLoggedIn,
			&conv.StartedAt, &conv.LastMessageAt, &contextJSON, &conv.Version); err != nil {
			return nil, err
		}
		conv.UserID = uid.String
		if contextJSON.Valid && contextJSON.String != "" {
			if err := json.Unmarshal([]byte(contextJSON.String), &conv.Context); err != nil {
				return nil, fmt.Errorf("failed to decode context: %w", err)
			}
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// GetOrCreatePropertyConversation reuses the open conversation for the party
// triple if one exists, otherwise creates it. A duplicate create racing on
// the partial unique index falls back to reading the winner's row.
func (s *SQLiteStore) GetOrCreatePropertyConversation(ctx context.Context, conv *domain.PropertyConversation) (*domain.PropertyConversation, error) {
	existing, err := s.FindOpenPropertyConversation(ctx, conv.PropertyID, conv.UserID, conv.CounterpartID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now().UTC()
	emptyCtx, _ := json.Marshal(domain.ConversationContext{})
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO property_conversations (session_id, user_id, property_id, role, counterpart_id, conversation_status, started_at, last_message_at, property_context)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		conv.SessionID, conv.UserID, conv.PropertyID, conv.Role, conv.CounterpartID, domain.StatusActive, now, now, string(emptyCtx))
	if err != nil && !strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return nil, err
	}
	return s.FindOpenPropertyConversation(ctx, conv.PropertyID, conv.UserID, conv.CounterpartID)
}

// GetPropertyConversation retrieves a property conversation by id.
func (s *SQLiteStore) GetPropertyConversation(ctx context.Context, id int64) (*domain.PropertyConversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, user_id, property_id, role, counterpart_id, conversation_status, started_at, last_message_at, property_context, version
		 FROM property_conversations WHERE id = ?`, id)
	return scanPropertyConversation(row)
}

// GetOpenPropertyConversationBySession returns the session's open property
// conversation, if any.
func (s *SQLiteStore) GetOpenPropertyConversationBySession(ctx context.Context, sessionID string) (*domain.PropertyConversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, user_id, property_id, role, counterpart_id, conversation_status, started_at, last_message_at, property_context, version
		 FROM property_conversations WHERE session_id = ? AND conversation_status != 'closed'`, sessionID)
	return scanPropertyConversation(row)
}

// FindOpenPropertyConversation finds the open conversation for a party triple.
func (s *SQLiteStore) FindOpenPropertyConversation(ctx context.Context, propertyID, userID, counterpartID string) (*domain.PropertyConversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, user_id, property_id, role, counterpart_id, conversation_status, started_at, last_message_at, property_context, version
		 FROM property_conversations
		 WHERE property_id = ? AND user_id = ? AND counterpart_id = ? AND conversation_status != 'closed'`,
		propertyID, userID, counterpartID)
	return scanPropertyConversation(row)
}

// FindLatestPropertyConversation finds the newest conversation for a party
// triple, closed ones included.
func (s *SQLiteStore) FindLatestPropertyConversation(ctx context.Context, propertyID, userID, counterpartID string) (*domain.PropertyConversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, user_id, property_id, role, counterpart_id, conversation_status, started_at, last_message_at, property_context, version
		 FROM property_conversations
		 WHERE property_id = ? AND user_id = ? AND counterpart_id = ?
		 ORDER BY id DESC LIMIT 1`,
		propertyID, userID, counterpartID)
	return scanPropertyConversation(row)
}

func scanPropertyConversation(row *sql.Row) (*domain.PropertyConversation, error) {
	var conv domain.PropertyConversation
	var contextJSON sql.NullString
	err := row.Scan(&conv.ID, &conv.SessionID, &conv.UserID, &conv.PropertyID, &conv.Role,
		&conv.CounterpartID, &conv.Status, &conv.StartedAt, &conv.LastMessageAt, &contextJSON, &conv.Version)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if contextJSON.Valid && contextJSON.String != "" {
		if err := json.Unmarshal([]byte(contextJSON.String), &conv.PropertyContext); err != nil {
			return nil, fmt.Errorf("failed to decode property context: %w", err)
		}
	}
	return &conv, nil
}

// AppendPropertyMessage appends a single synthetic message to a property
// conversation in one transaction.
func (s *SQLiteStore) AppendPropertyMessage(ctx context.Context, conversationID int64, msg *domain.Message, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO property_messages (conversation_id, role, content, timestamp, intent, metadata) VALUES (?, ?, ?, ?, ?, ?)`,
		conversationID, msg.Role, msg.Content, msg.Timestamp, nullableString(string(msg.Intent)), nullableString(string(msg.Metadata)))
	if err != nil {
		return err
	}
	msg.ID, _ = res.LastInsertId()
	msg.ConversationID = conversationID

	if _, err := tx.ExecContext(ctx,
		`UPDATE property_conversations SET last_message_at = ?, version = version + 1 WHERE id = ?`,
		at, conversationID); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdatePropertyConversationStatus applies a status transition, enforcing the
// status machine inside the transaction.
func (s *SQLiteStore) UpdatePropertyConversationStatus(ctx context.Context, id int64, status domain.ConversationStatus) (*domain.PropertyConversation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var current domain.ConversationStatus
	err = tx.QueryRowContext(ctx,
		`SELECT conversation_status FROM property_conversations WHERE id = ?`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return nil, domain.ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	if !domain.ValidStatusTransition(current, status) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current, status)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE property_conversations SET conversation_status = ?, version = version + 1 WHERE id = ?`,
		status, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetPropertyConversation(ctx, id)
}

// ListPropertyConversationsByUser lists conversations the user is a direct
// party of, optionally filtered by role and status.
func (s *SQLiteStore) ListPropertyConversationsByUser(ctx context.Context, userID string, filter domain.ConversationFilter) ([]domain.PropertyConversation, error) {
	query := `SELECT id, session_id, user_id, property_id, role, counterpart_id, conversation_status, started_at, last_message_at, property_context, version
		 FROM property_conversations WHERE user_id = ?`
	args := []interface{}{userID}
	if filter.Role != "" {
		query += ` AND role = ?`
		args = append(args, filter.Role)
	}
	if filter.Status != "" {
		query += ` AND conversation_status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY last_message_at DESC`
	return s.queryPropertyConversations(ctx, query, args...)
}

// ListCounterpartConversations lists conversations where the user is linked
// only through an external reference, never as the owning party.
func (s *SQLiteStore) ListCounterpartConversations(ctx context.Context, userID string, filter domain.ConversationFilter) ([]domain.PropertyConversation, error) {
	query := `SELECT DISTINCT pc.id, pc.session_id, pc.user_id, pc.property_id, pc.role, pc.counterpart_id, pc.conversation_status, pc.started_at, pc.last_message_at, pc.property_context, pc.version
		 FROM property_conversations pc
		 JOIN external_references er ON er.property_conversation_id = pc.id
		 WHERE er.external_id = ? AND pc.user_id != ?`
	args := []interface{}{userID, userID}
	if filter.Role != "" {
		// Filter by the role the referenced user would hold, i.e. the
		// counterpart of the conversation owner's role.
		query += ` AND pc.role != ?`
		args = append(args, filter.Role)
	}
	if filter.Status != "" {
		query += ` AND pc.conversation_status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY pc.last_message_at DESC`
	return s.queryPropertyConversations(ctx, query, args...)
}

func (s *SQLiteStore) queryPropertyConversations(ctx context.Context, query string, args ...interface{}) ([]domain.PropertyConversation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []domain.PropertyConversation
	for rows.Next() {
		var conv domain.PropertyConversation
		var contextJSON sql.NullString
		if err := rows.Scan(&conv.ID, &conv.SessionID, &conv.UserID, &conv.PropertyID, &conv.Role,
			&conv.CounterpartID, &conv.Status, &conv.StartedAt, &conv.LastMessageAt, &contextJSON, &conv.Version); err != nil {
			return nil, err
		}
		if contextJSON.Valid && contextJSON.String != "" {
			if err := json.Unmarshal([]byte(contextJSON.String), &conv.PropertyContext); err != nil {
				return nil, fmt.Errorf("failed to decode property context: %w", err)
			}
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// CreateExternalReference records a weak link between a conversation and an
// external party or service.
func (s *SQLiteStore) CreateExternalReference(ctx context.Context, ref *domain.ExternalReference) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO external_references (general_conversation_id, property_conversation_id, service_name, external_id, reference_metadata, last_synced)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		nullableID(ref.GeneralConversationID), nullableID(ref.PropertyConversationID),
		ref.ServiceName, ref.ExternalID, nullableString(string(ref.ReferenceMetadata)), ref.LastSynced)
	if err != nil {
		return err
	}
	ref.ID, _ = res.LastInsertId()
	return nil
}

// ListExternalReferences lists references for a service/external id pair.
func (s *SQLiteStore) ListExternalReferences(ctx context.Context, serviceName, externalID string) ([]domain.ExternalReference, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, general_conversation_id, property_conversation_id, service_name, external_id, reference_metadata, last_synced
		 FROM external_references WHERE service_name = ? AND external_id = ? ORDER BY last_synced DESC`,
		serviceName, externalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []domain.ExternalReference
	for rows.Next() {
		var ref domain.ExternalReference
		var generalID, propertyID sql.NullInt64
		var metadata sql.NullString
		if err := rows.Scan(&ref.ID, &generalID, &propertyID, &ref.ServiceName, &ref.ExternalID, &metadata, &ref.LastSynced); err != nil {
			return nil, err
		}
		ref.GeneralConversationID = generalID.Int64
		ref.PropertyConversationID = propertyID.Int64
		if metadata.Valid {
			ref.ReferenceMetadata = json.RawMessage(metadata.String)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// TouchExternalReference refreshes a reference's sync timestamp.
func (s *SQLiteStore) TouchExternalReference(ctx context.Context, id int64, syncedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE external_references SET last_synced = ? WHERE id = ?`, syncedAt, id)
	return err
}

// CreateQuestion persists a new pending question.
func (s *SQLiteStore) CreateQuestion(ctx context.Context, q *domain.Question) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO property_questions (property_id, buyer_id, seller_id, conversation_id, question_text, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		q.PropertyID, q.BuyerID, q.SellerID, nullableID(q.ConversationID), q.QuestionText, domain.QuestionPending, q.CreatedAt)
	if err != nil {
		return err
	}
	q.ID, _ = res.LastInsertId()
	q.Status = domain.QuestionPending
	return nil
}

// GetQuestion retrieves a question by id.
func (s *SQLiteStore) GetQuestion(ctx context.Context, id int64) (*domain.Question, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, property_id, buyer_id, seller_id, conversation_id, question_text, status, created_at, answered_at, answer_text
		 FROM property_questions WHERE id = ?`, id)
	return scanQuestion(row)
}

func scanQuestion(row *sql.Row) (*domain.Question, error) {
	var q domain.Question
	var conversationID sql.NullInt64
	var answeredAt sql.NullTime
	var answerText sql.NullString
	err := row.Scan(&q.ID, &q.PropertyID, &q.BuyerID, &q.SellerID, &conversationID, &q.QuestionText,
		&q.Status, &q.CreatedAt, &answeredAt, &answerText)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	q.ConversationID = conversationID.Int64
	if answeredAt.Valid {
		q.AnsweredAt = &answeredAt.Time
	}
	q.AnswerText = answerText.String
	return &q, nil
}

// ListQuestionsBySeller lists questions addressed to a seller, optionally
// filtered by status.
func (s *SQLiteStore) ListQuestionsBySeller(ctx context.Context, sellerID string, status domain.QuestionStatus) ([]domain.Question, error) {
	query := `SELECT id, property_id, buyer_id, seller_id, conversation_id, question_text, status, created_at, answered_at, answer_text
		 FROM property_questions WHERE seller_id = ?`
	args := []interface{}{sellerID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var q domain.Question
		var conversationID sql.NullInt64
		var answeredAt sql.NullTime
		var answerText sql.NullString
		if err := rows.Scan(&q.ID, &q.PropertyID, &q.BuyerID, &q.SellerID, &conversationID, &q.QuestionText,
			&q.Status, &q.CreatedAt, &answeredAt, &answerText); err != nil {
			return nil, err
		}
		q.ConversationID = conversationID.Int64
		if answeredAt.Valid {
			q.AnsweredAt = &answeredAt.Time
		}
		q.AnswerText = answerText.String
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// MarkQuestionAnswered transitions a question to answered. The status guard
// in the UPDATE makes a second answer attempt fail without mutating the row.
func (s *SQLiteStore) MarkQuestionAnswered(ctx context.Context, id int64, answerText string, at time.Time) (*domain.Question, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE property_questions SET status = ?, answer_text = ?, answered_at = ? WHERE id = ? AND status = ?`,
		domain.QuestionAnswered, answerText, at, id, domain.QuestionPending)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, domain.ErrQuestionNotFound
	}
	return s.GetQuestion(ctx, id)
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableID(id int64) interface{} {
	if id == 0 {
		return nil
	}
	return id
}
