package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"articleforge/internal/core"
	"articleforge/internal/logger"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq" // Postgres driver
)

const DefaultTable = "articles"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Postgres implements ArticleStore on a PostgreSQL table
type Postgres struct {
	db    *sql.DB
	table string
	psql  sq.StatementBuilderType
}

// NewPostgres opens a connection pool and verifies it
func NewPostgres(connectionString, table string) (*Postgres, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name: %q", table)
	}

	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return newPostgres(db, table), nil
}

func newPostgres(db *sql.DB, table string) *Postgres {
	return &Postgres{
		db:    db,
		table: table,
		psql:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Close closes the pool
func (p *Postgres) Close() error {
	return p.db.Close()
}

// Ping checks the connection
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// EnsureSchema creates the articles table when it does not exist
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		enhancement JSONB,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`, p.table)

	if _, err := p.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create %s table: %w", p.table, err)
	}
	return nil
}

// Save inserts or replaces an article row
func (p *Postgres) Save(ctx context.Context, article core.Article) error {
	enhancement, err := encodeRecord(article.Enhancement)
	if err != nil {
		return err
	}

	query, args, err := p.psql.Insert(p.table).
		Columns("id", "title", "content", "url", "enhancement", "updated_at").
		Values(article.ID, article.Title, article.Content, article.URL, enhancement, sq.Expr("NOW()")).
		Suffix("ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, content = EXCLUDED.content, " +
			"url = EXCLUDED.url, enhancement = EXCLUDED.enhancement, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save article %s: %w", article.ID, err)
	}
	return nil
}

func (p *Postgres) listPendingQuery(limit int) (string, []interface{}, error) {
	q := p.psql.Select("id", "title", "content", "url", "updated_at").
		From(p.table).
		Where(sq.Or{
			sq.Eq{"enhancement": nil},
			sq.Expr("enhancement->>'isFallback' = 'true'"),
		}).
		OrderBy("updated_at ASC", "id ASC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return q.ToSql()
}

func (p *Postgres) ListPending(ctx context.Context, limit int) ([]core.Article, error) {
	query, args, err := p.listPendingQuery(limit)
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending articles: %w", err)
	}
	defer rows.Close()

	var articles []core.Article
	for rows.Next() {
		var a core.Article
		if err := rows.Scan(&a.ID, &a.Title, &a.Content, &a.URL, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate articles: %w", err)
	}

	logger.Debug("Listed pending articles", "table", p.table, "count", len(articles))
	return articles, nil
}

func (p *Postgres) updateQuery(id string, enhancement interface{}) (string, []interface{}, error) {
	return p.psql.Update(p.table).
		Set("enhancement", enhancement).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id}).
		ToSql()
}

func (p *Postgres) Update(ctx context.Context, id string, record *core.EnhancementRecord) error {
	enhancement, err := encodeRecord(record)
	if err != nil {
		return err
	}

	query, args, err := p.updateQuery(id, enhancement)
	if err != nil {
		return fmt.Errorf("failed to build update: %w", err)
	}

	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update article %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (p *Postgres) touchQuery(id string) (string, []interface{}, error) {
	return p.psql.Update(p.table).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id}).
		ToSql()
}

func (p *Postgres) MarkSkipped(ctx context.Context, id string) error {
	query, args, err := p.touchQuery(id)
	if err != nil {
		return fmt.Errorf("failed to build update: %w", err)
	}

	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to mark article %s skipped: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Get loads one article including its enhancement
func (p *Postgres) Get(ctx context.Context, id string) (*core.Article, error) {
	query, args, err := p.psql.Select("id", "title", "content", "url", "enhancement", "updated_at").
		From(p.table).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var a core.Article
	var enhancement sql.NullString
	err = p.db.QueryRowContext(ctx, query, args...).Scan(&a.ID, &a.Title, &a.Content, &a.URL, &enhancement, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load article %s: %w", id, err)
	}

	if enhancement.Valid {
		var record core.EnhancementRecord
		if err := json.Unmarshal([]byte(enhancement.String), &record); err != nil {
			return nil, fmt.Errorf("failed to decode enhancement for %s: %w", id, err)
		}
		a.Enhancement = &record
	}
	return &a, nil
}

// encodeRecord returns the JSONB parameter for record; nil stays SQL NULL.
func encodeRecord(record *core.EnhancementRecord) (interface{}, error) {
	if record == nil {
		return nil, nil
	}
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode enhancement: %w", err)
	}
	return string(data), nil
}
