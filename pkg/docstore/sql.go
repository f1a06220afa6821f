package docstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Dialect renders the backend-specific parts of document SQL
type Dialect struct {
	// Name is the database/sql driver name
	Name string

	placeholder func(n int) string
	field       func(name string) string
	contains    func(field, placeholder string) string
	encodeArray func(values []interface{}) interface{}
	lockSuffix  string
	schema      []string
}

// Postgres stores documents in a JSONB column and reads fields with ->>
var Postgres = Dialect{
	Name:        "postgres",
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	field:       func(name string) string { return fmt.Sprintf("data->>'%s'", name) },
	contains: func(field, ph string) string {
		return fmt.Sprintf("data->'%s' @> %s::jsonb", field, ph)
	},
	encodeArray: func(values []interface{}) interface{} {
		out := make([]string, len(values))
		for i, v := range values {
			out[i] = textValue(v)
		}
		return pq.Array(out)
	},
	lockSuffix: " FOR UPDATE",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			data JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (collection, id)
		)`,
		`CREATE INDEX IF NOT EXISTS documents_laboratory_idx ON documents (collection, (data->>'laboratoryId'))`,
	},
}

// SQLite stores documents in a TEXT column and reads fields with json_extract
var SQLite = Dialect{
	Name:        "sqlite3",
	placeholder: func(int) string { return "?" },
	field:       func(name string) string { return fmt.Sprintf("json_extract(data, '$.%s')", name) },
	contains: func(field, ph string) string {
		return fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(data, '$.%s') WHERE json_each.value = json_extract(%s, '$[0]'))", field, ph)
	},
	schema: []string{
		`CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			data TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (collection, id)
		)`,
		`CREATE INDEX IF NOT EXISTS documents_laboratory_idx ON documents (collection, json_extract(data, '$.laboratoryId'))`,
	},
}

// SQLConfig holds connection pool settings for OpenSQL
type SQLConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	Timeout      time.Duration
}

// SQLStore keeps every collection in one documents(collection, id, data) table
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStore wraps an open database handle
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// OpenSQL opens and pings a database for the given dialect
func OpenSQL(ctx context.Context, dialect Dialect, cfg SQLConfig) (*SQLStore, error) {
	db, err := sql.Open(dialect.Name, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", dialect.Name, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", dialect.Name, err)
	}

	return NewSQLStore(db, dialect), nil
}

// EnsureSchema creates the documents table and its indexes
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// DB exposes the underlying handle
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Get(ctx context.Context, collection, id string) (Document, error) {
	query := fmt.Sprintf("SELECT data FROM documents WHERE collection = %s AND id = %s",
		s.dialect.placeholder(1), s.dialect.placeholder(2))

	var raw []byte
	err := s.db.QueryRowContext(ctx, query, collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", mapSQLError(err))
	}

	return decodeRaw(raw)
}

func (s *SQLStore) Find(ctx context.Context, q Query) ([]Document, error) {
	query, args, err := s.buildSelect(q)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", mapSQLError(err))
	}
	defer rows.Close()

	docs := make([]Document, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc, err := decodeRaw(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return docs, nil
}

// buildSelect renders a query. Field names are validated identifiers; all
// values are bound as parameters.
func (s *SQLStore) buildSelect(q Query) (string, []interface{}, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}

	var b strings.Builder
	args := []interface{}{q.Collection}
	b.WriteString("SELECT data FROM documents WHERE collection = ")
	b.WriteString(s.dialect.placeholder(1))

	for _, f := range q.Filters {
		b.WriteString(" AND ")
		switch f.Op {
		case OpEq:
			args = append(args, s.scalarArg(f.Value))
			b.WriteString(s.columnFor(f.Field))
			b.WriteString(" = ")
			b.WriteString(s.dialect.placeholder(len(args)))
		case OpIn:
			values := f.Value.([]interface{})
			if s.dialect.encodeArray != nil {
				args = append(args, s.dialect.encodeArray(values))
				fmt.Fprintf(&b, "%s = ANY(%s)", s.columnFor(f.Field), s.dialect.placeholder(len(args)))
				continue
			}
			if len(values) == 0 {
				b.WriteString("1 = 0")
				continue
			}
			phs := make([]string, len(values))
			for i, v := range values {
				args = append(args, s.scalarArg(v))
				phs[i] = s.dialect.placeholder(len(args))
			}
			fmt.Fprintf(&b, "%s IN (%s)", s.columnFor(f.Field), strings.Join(phs, ", "))
		case OpContains:
			encoded, err := json.Marshal([]interface{}{f.Value})
			if err != nil {
				return "", nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
			}
			args = append(args, string(encoded))
			b.WriteString(s.dialect.contains(f.Field, s.dialect.placeholder(len(args))))
		}
	}

	order := "id"
	if q.OrderBy != "" && q.OrderBy != FieldID {
		order = s.dialect.field(q.OrderBy)
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(order)
	if q.Descending {
		b.WriteString(" DESC")
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}

	return b.String(), args, nil
}

func (s *SQLStore) columnFor(field string) string {
	if field == FieldID {
		return "id"
	}
	return s.dialect.field(field)
}

// scalarArg converts a filter value for comparison against the extracted
// field. Postgres ->> yields text, so values are compared as text there.
func (s *SQLStore) scalarArg(v interface{}) interface{} {
	if s.dialect.encodeArray != nil {
		return textValue(v)
	}
	if b, ok := v.(bool); ok {
		if b {
			return 1
		}
		return 0
	}
	return v
}

func textValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(raw)
	}
}

// Insert writes a new row and relies on the (collection, id) primary key
// to reject ids that are already taken
func (s *SQLStore) Insert(ctx context.Context, collection, id string, doc Document) error {
	if collection == "" || id == "" {
		return fmt.Errorf("%w: collection and id are required", ErrInvalidQuery)
	}
	created, err := Encode(doc)
	if err != nil {
		return err
	}
	if created == nil {
		created = Document{}
	}
	created[FieldID] = id

	encoded, err := json.Marshal(created)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	insertSQL := fmt.Sprintf(`INSERT INTO documents (collection, id, data, updated_at) VALUES (%s, %s, %s, %s)
		ON CONFLICT (collection, id) DO NOTHING`,
		s.dialect.placeholder(1), s.dialect.placeholder(2), s.dialect.placeholder(3), s.dialect.placeholder(4))

	res, err := s.db.ExecContext(ctx, insertSQL, collection, id, string(encoded), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", mapSQLError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrAlreadyExists)
	}
	return nil
}

// Merge reads the current document inside a transaction, overlays the
// patch fields and writes the result back
func (s *SQLStore) Merge(ctx context.Context, collection, id string, doc Document) error {
	if collection == "" || id == "" {
		return fmt.Errorf("%w: collection and id are required", ErrInvalidQuery)
	}
	patch, err := Encode(doc)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapSQLError(err))
	}
	defer tx.Rollback()

	selectSQL := fmt.Sprintf("SELECT data FROM documents WHERE collection = %s AND id = %s%s",
		s.dialect.placeholder(1), s.dialect.placeholder(2), s.dialect.lockSuffix)

	current := Document{}
	var raw []byte
	err = tx.QueryRowContext(ctx, selectSQL, collection, id).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("failed to load document: %w", mapSQLError(err))
	default:
		if current, err = decodeRaw(raw); err != nil {
			return err
		}
	}

	for k, v := range patch {
		current[k] = v
	}
	current[FieldID] = id

	encoded, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	upsertSQL := fmt.Sprintf(`INSERT INTO documents (collection, id, data, updated_at) VALUES (%s, %s, %s, %s)
		ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		s.dialect.placeholder(1), s.dialect.placeholder(2), s.dialect.placeholder(3), s.dialect.placeholder(4))

	if _, err := tx.ExecContext(ctx, upsertSQL, collection, id, string(encoded), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to write document: %w", mapSQLError(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit document: %w", mapSQLError(err))
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, collection, id string) error {
	query := fmt.Sprintf("DELETE FROM documents WHERE collection = %s AND id = %s",
		s.dialect.placeholder(1), s.dialect.placeholder(2))

	res, err := s.db.ExecContext(ctx, query, collection, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", mapSQLError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func decodeRaw(raw []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode stored document: %w", err)
	}
	return doc, nil
}

// mapSQLError translates Postgres privilege errors to ErrPermissionDenied
// and lost connections to ErrUnavailable
func mapSQLError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "42501" {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, pqErr.Message)
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
