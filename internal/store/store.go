// Package store provides the SQLite article archive.
//
// The archive is an upstream of its own: Loader serves it through the same
// page contract as the HTTP loader, so the paging engine can run against
// previously imported articles without network access.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/abelbrown/newsfeed/internal/model"
)

// Store handles SQLite persistence. NOT an interface - concrete type.
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Store struct {
	db *sql.DB
	mu sync.RWMutex // Protects all database operations
}

// Tags are archive-only attributes used by top-headlines queries. The
// upstream article record does not carry them, so they are supplied at
// import time.
type Tags struct {
	Country  string
	Category string
}

// Open creates a new Store with the given database path.
// Creates tables if they don't exist.
// Uses WAL mode for better concurrent read performance (file-based DBs only).
func Open(dbPath string) (*Store, error) {
	// Build connection string based on database type
	connStr := dbPath
	if dbPath == ":memory:" {
		// For in-memory databases, use shared cache mode so all connections
		// in the pool see the same database
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// For in-memory databases, limit to 1 connection to avoid issues
	// with multiple connections getting different databases
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return s, nil
}

// createTables creates the required tables and indexes if they don't exist.
// published_at holds Unix seconds so range filters compare numerically.
func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS articles (
		id TEXT PRIMARY KEY,
		source_id TEXT NOT NULL DEFAULT '',
		source_name TEXT NOT NULL DEFAULT '',
		author TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		url_to_image TEXT NOT NULL DEFAULT '',
		published_at INTEGER NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		country TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		imported_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_articles_published ON articles(published_at DESC);
	CREATE INDEX IF NOT EXISTS idx_articles_source ON articles(source_id);
	CREATE INDEX IF NOT EXISTS idx_articles_country ON articles(country, category);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
// Thread-safe: acquires write lock to prevent closing during in-flight operations.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// SaveArticles stores articles under tags, returning the count of new rows.
// Articles already archived (by identity) are silently ignored.
// Thread-safe: acquires write lock.
func (s *Store) SaveArticles(ctx context.Context, articles []model.Article, tags Tags) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(articles) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO articles (
			id, source_id, source_name, author, title, description, url,
			url_to_image, published_at, content, country, category, imported_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	country := strings.ToLower(tags.Country)
	newCount := 0
	for _, a := range articles {
		result, err := stmt.ExecContext(ctx,
			a.Identity(),
			a.Source.ID,
			a.Source.Name,
			a.Author,
			a.Title,
			a.Description,
			a.URL,
			a.URLToImage,
			a.PublishedAt.Unix(),
			a.Content,
			country,
			tags.Category,
			now,
		)
		if err != nil {
			return 0, fmt.Errorf("insert %s: %w", a.Identity(), err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return 0, err
		}
		if affected > 0 {
			newCount++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return newCount, nil
}

// Count returns the number of archived articles.
// Thread-safe: acquires read lock.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM articles").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// QueryArticles returns up to limit articles matching q, skipping offset.
// Thread-safe: acquires read lock.
func (s *Store) QueryArticles(ctx context.Context, q model.Query, limit, offset int) ([]model.Article, error) {
	where, args, err := filter(q)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT source_id, source_name, author, title, description, url,
			url_to_image, published_at, content
		FROM articles
		WHERE ` + where + `
		ORDER BY published_at DESC, id
		LIMIT ? OFFSET ?
	`
	args = append(args, limit, offset)

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryArticles(ctx, query, args...)
}

// likeEscaper makes the LIKE wildcards in a search term match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// filter translates q into a WHERE clause. Everything matches the term in
// title, description or content; top-headlines filters on the import tags.
func filter(q model.Query) (string, []any, error) {
	var conds []string
	var args []any

	switch q.Kind {
	case model.KindEverything:
		like := "%" + likeEscaper.Replace(strings.ToLower(q.Term)) + "%"
		conds = append(conds, `(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\' OR LOWER(content) LIKE ? ESCAPE '\')`)
		args = append(args, like, like, like)
		if q.From != "" {
			from, err := time.Parse("2006-01-02", q.From)
			if err != nil {
				return "", nil, fmt.Errorf("%w: from %q: %v", model.ErrInvalidQuery, q.From, err)
			}
			conds = append(conds, "published_at >= ?")
			args = append(args, from.Unix())
		}
	case model.KindTopHeadlines:
		if q.Sources != "" {
			ids := strings.Split(q.Sources, ",")
			marks := make([]string, len(ids))
			for i, id := range ids {
				marks[i] = "?"
				args = append(args, strings.TrimSpace(id))
			}
			conds = append(conds, "source_id IN ("+strings.Join(marks, ", ")+")")
		}
		if q.Country != "" {
			conds = append(conds, "country = ?")
			args = append(args, strings.ToLower(q.Country))
		}
		if q.Category != "" {
			conds = append(conds, "category = ?")
			args = append(args, q.Category)
		}
	}
	if len(conds) == 0 {
		return "1 = 1", nil, nil
	}
	return strings.Join(conds, " AND "), args, nil
}

// queryArticles is a helper that executes a query and scans results into
// Articles. Caller must hold s.mu (read lock is sufficient).
func (s *Store) queryArticles(ctx context.Context, query string, args ...any) ([]model.Article, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var articles []model.Article
	for rows.Next() {
		var a model.Article
		var published int64
		err := rows.Scan(
			&a.Source.ID,
			&a.Source.Name,
			&a.Author,
			&a.Title,
			&a.Description,
			&a.URL,
			&a.URLToImage,
			&published,
			&a.Content,
		)
		if err != nil {
			return nil, err
		}
		a.PublishedAt = time.Unix(published, 0).UTC()
		articles = append(articles, a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return articles, nil
}
