package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	finalize "github.com/goliatone/go-finalize"
	"github.com/goliatone/go-finalize/store/dialect"
)

var (
	_ finalize.ExecutionStore   = (*SQLStore)(nil)
	_ finalize.UserDirectory    = sqlUsers{}
	_ finalize.AccountDirectory = (*SQLStore)(nil)
	_ finalize.TagStore         = (*SQLStore)(nil)
)

// SQLStore persists records through database/sql. Executions and accounts are
// stored as JSON documents; tags live in their own column so they can be
// replaced without rewriting the document.
type SQLStore struct {
	db      *sql.DB
	dialect dialect.Dialect
	prefix  string

	schemaOnce sync.Once
	schemaErr  error
}

// NewSQLStore builds a store on db. Table names are prefixed with prefix
// (default "finalize_").
func NewSQLStore(db *sql.DB, d dialect.Dialect, prefix string) *SQLStore {
	if prefix == "" {
		prefix = "finalize_"
	}
	return &SQLStore{db: db, dialect: d, prefix: prefix}
}

func (s *SQLStore) table(name string) string { return s.prefix + name }

// q rewrites ? placeholders for the configured dialect.
func (s *SQLStore) q(query string) string {
	if s.dialect.Placeholder(1) == "?" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(s.dialect.Placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// EnsureSchema creates the tables when missing.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("sql store not configured")
	}
	s.schemaOnce.Do(func() {
		ddl := []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				app_id TEXT NOT NULL,
				id TEXT NOT NULL,
				account_id TEXT NOT NULL,
				document TEXT NOT NULL,
				tags TEXT,
				updated_at TEXT NOT NULL,
				PRIMARY KEY (app_id, id)
			)`, s.table("executions")),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				name TEXT,
				email TEXT,
				analytics_identity TEXT
			)`, s.table("users")),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				document TEXT NOT NULL
			)`, s.table("accounts")),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				entity_id TEXT NOT NULL,
				position INTEGER NOT NULL,
				key_expr TEXT NOT NULL,
				value_expr TEXT NOT NULL,
				scope TEXT,
				PRIMARY KEY (entity_id, position)
			)`, s.table("tag_definitions")),
		}
		for _, stmt := range ddl {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				s.schemaErr = err
				return
			}
		}
	})
	return s.schemaErr
}

// SaveExecution inserts or replaces an execution document and its tags.
func (s *SQLStore) SaveExecution(ctx context.Context, exec *finalize.WorkflowExecution) error {
	if exec == nil || strings.TrimSpace(exec.ID) == "" {
		return errors.New("execution id required")
	}
	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}
	doc := exec.Clone()
	tags := doc.Tags
	doc.Tags = nil
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	tagsJSON, err := marshalTags(tags)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.q(fmt.Sprintf(`INSERT INTO %s (app_id, id, account_id, document, tags, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (app_id, id) DO UPDATE SET
			account_id = excluded.account_id,
			document = excluded.document,
			tags = excluded.tags,
			updated_at = excluded.updated_at`, s.table("executions"))),
		exec.AppID, exec.ID, exec.AccountID, string(docJSON), tagsJSON, now(),
	)
	return err
}

func (s *SQLStore) Get(ctx context.Context, appID, executionID string) (*finalize.WorkflowExecution, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	var docJSON string
	var tagsJSON sql.NullString
	err := s.db.QueryRowContext(ctx,
		s.q(fmt.Sprintf(`SELECT document, tags FROM %s WHERE app_id = ? AND id = ?`, s.table("executions"))),
		appID, executionID,
	).Scan(&docJSON, &tagsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var exec finalize.WorkflowExecution
	if err := json.Unmarshal([]byte(docJSON), &exec); err != nil {
		return nil, fmt.Errorf("decode execution %s: %w", executionID, err)
	}
	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &exec.Tags); err != nil {
			return nil, fmt.Errorf("decode execution tags %s: %w", executionID, err)
		}
	}
	return &exec, nil
}

func (s *SQLStore) UpdateTags(ctx context.Context, appID, executionID string, tags []finalize.ResolvedTag) error {
	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}
	if tags == nil {
		tags = []finalize.ResolvedTag{}
	}
	tagsJSON, err := marshalTags(tags)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx,
		s.q(fmt.Sprintf(`UPDATE %s SET tags = ?, updated_at = ? WHERE app_id = ? AND id = ?`, s.table("executions"))),
		tagsJSON, now(), appID, executionID,
	)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// SaveUser inserts or replaces a user.
func (s *SQLStore) SaveUser(ctx context.Context, user *finalize.User) error {
	if user == nil || strings.TrimSpace(user.ID) == "" {
		return errors.New("user id required")
	}
	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, s.q(fmt.Sprintf(`INSERT INTO %s (id, name, email, analytics_identity)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			analytics_identity = excluded.analytics_identity`, s.table("users"))),
		user.ID, user.Name, user.Email, user.AnalyticsIdentity,
	)
	return err
}

// GetUser returns the user or nil when it does not exist.
func (s *SQLStore) GetUser(ctx context.Context, userID string) (*finalize.User, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	var user finalize.User
	var name, email, identity sql.NullString
	err := s.db.QueryRowContext(ctx,
		s.q(fmt.Sprintf(`SELECT id, name, email, analytics_identity FROM %s WHERE id = ?`, s.table("users"))),
		userID,
	).Scan(&user.ID, &name, &email, &identity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	user.Name = name.String
	user.Email = email.String
	user.AnalyticsIdentity = identity.String
	return &user, nil
}

// UpdateUser replaces an existing user.
func (s *SQLStore) UpdateUser(ctx context.Context, user *finalize.User) (*finalize.User, error) {
	if user == nil {
		return nil, errors.New("user required")
	}
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	result, err := s.db.ExecContext(ctx,
		s.q(fmt.Sprintf(`UPDATE %s SET name = ?, email = ?, analytics_identity = ? WHERE id = ?`, s.table("users"))),
		user.Name, user.Email, user.AnalyticsIdentity, user.ID,
	)
	if err != nil {
		return nil, err
	}
	if err := requireRow(result); err != nil {
		return nil, err
	}
	return user.Clone(), nil
}

// Users returns the store as a finalize.UserDirectory.
func (s *SQLStore) Users() finalize.UserDirectory {
	return sqlUsers{store: s}
}

type sqlUsers struct {
	store *SQLStore
}

func (u sqlUsers) Get(ctx context.Context, userID string) (*finalize.User, error) {
	return u.store.GetUser(ctx, userID)
}

func (u sqlUsers) Update(ctx context.Context, user *finalize.User) (*finalize.User, error) {
	return u.store.UpdateUser(ctx, user)
}

// SaveAccount inserts or replaces an account document.
func (s *SQLStore) SaveAccount(ctx context.Context, account *finalize.Account) error {
	if account == nil || strings.TrimSpace(account.ID) == "" {
		return errors.New("account id required")
	}
	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}
	docJSON, err := json.Marshal(account)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.q(fmt.Sprintf(`INSERT INTO %s (id, document) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET document = excluded.document`, s.table("accounts"))),
		account.ID, string(docJSON),
	)
	return err
}

func (s *SQLStore) GetAccount(ctx context.Context, accountID string) (*finalize.Account, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	var docJSON string
	err := s.db.QueryRowContext(ctx,
		s.q(fmt.Sprintf(`SELECT document FROM %s WHERE id = ?`, s.table("accounts"))),
		accountID,
	).Scan(&docJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var account finalize.Account
	if err := json.Unmarshal([]byte(docJSON), &account); err != nil {
		return nil, fmt.Errorf("decode account %s: %w", accountID, err)
	}
	return &account, nil
}

// SaveDefinitions replaces the tag definitions of entityID in one transaction.
func (s *SQLStore) SaveDefinitions(ctx context.Context, entityID string, defs []finalize.TagDefinition) error {
	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		s.q(fmt.Sprintf(`DELETE FROM %s WHERE entity_id = ?`, s.table("tag_definitions"))),
		entityID,
	); err != nil {
		_ = tx.Rollback()
		return err
	}
	insert := s.q(fmt.Sprintf(`INSERT INTO %s (entity_id, position, key_expr, value_expr, scope) VALUES (?, ?, ?, ?, ?)`,
		s.table("tag_definitions")))
	for i, def := range defs {
		if _, err := tx.ExecContext(ctx, insert, entityID, i, def.Key, def.Value, string(def.Scope)); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLStore) Definitions(ctx context.Context, entityID string) ([]finalize.TagDefinition, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		s.q(fmt.Sprintf(`SELECT key_expr, value_expr, scope FROM %s WHERE entity_id = ? ORDER BY position`,
			s.table("tag_definitions"))),
		entityID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []finalize.TagDefinition
	for rows.Next() {
		def := finalize.TagDefinition{EntityID: entityID}
		var scope sql.NullString
		if err := rows.Scan(&def.Key, &def.Value, &scope); err != nil {
			return nil, err
		}
		def.Scope = finalize.TagScope(scope.String)
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

func marshalTags(tags []finalize.ResolvedTag) (any, error) {
	if tags == nil {
		return nil, nil
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
