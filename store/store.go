// Package store persists bookmarks in SQLite, keyed by URL.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/shelf/analyzer"
	"github.com/teranos/shelf/db"
	"github.com/teranos/shelf/errors"
	"github.com/teranos/shelf/logger"
	"github.com/teranos/shelf/parser"
	"github.com/teranos/shelf/pipeline"
)

var _ pipeline.Sink = (*Store)(nil)

const selectColumns = `url, title, alias, path, category, group_name, alias_candidates,
	score, description, added_at, created_at, updated_at`

const upsertQuery = `
	INSERT INTO bookmarks (
		url, title, alias, path, category, group_name, alias_candidates,
		score, description, added_at, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(url) DO UPDATE SET
		title = excluded.title,
		alias = excluded.alias,
		path = excluded.path,
		category = excluded.category,
		group_name = excluded.group_name,
		alias_candidates = excluded.alias_candidates,
		score = excluded.score,
		description = excluded.description,
		added_at = excluded.added_at,
		updated_at = excluded.updated_at
`

// Store handles persistence of bookmarks
type Store struct {
	db     *sql.DB
	logger *zap.SugaredLogger
	now    func() time.Time
}

// New creates a bookmark store over an already migrated database.
func New(conn *sql.DB, log *zap.SugaredLogger) *Store {
	return &Store{db: conn, logger: logger.OrNop(log), now: time.Now}
}

// ListOptions page through listings. Limit 0 means no limit.
type ListOptions struct {
	Limit  int
	Offset int
}

// Stats summarizes the store.
type Stats struct {
	Bookmarks  int            `json:"bookmarks"`
	Tags       int            `json:"tags"`
	Categories map[string]int `json:"categories"`
}

// Insert adds a new bookmark. A taken URL fails with ErrConflict.
func (s *Store) Insert(ctx context.Context, b Bookmark) (*Bookmark, error) {
	if err := checkURL(b.URL); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	b.Tags = NormalizeTags(b.Tags)
	b.Path = orEmpty(b.Path)

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		path, candidates, err := encodeLists(b)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO bookmarks (
				url, title, alias, path, category, group_name, alias_candidates,
				score, description, added_at, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			b.URL, b.Title, b.Alias, path, b.Category, b.Group, candidates,
			b.Score, b.Description, b.Date, b.CreatedAt, b.UpdatedAt)
		if db.IsUniqueViolation(err) {
			return errors.Wrapf(errors.ErrConflict, "bookmark %s already exists", b.URL)
		}
		if err != nil {
			return errors.Wrap(err, "failed to insert bookmark")
		}
		return replaceTags(ctx, tx, b.URL, b.Tags)
	})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Put inserts or replaces the bookmark with b.URL, keeping its creation time.
func (s *Store) Put(ctx context.Context, b Bookmark) error {
	_, err := s.PutBatch(ctx, []Bookmark{b})
	return err
}

// PutBatch upserts bookmarks in one transaction and returns how many were
// written. Either all are written or none.
func (s *Store) PutBatch(ctx context.Context, bookmarks []Bookmark) (int, error) {
	for _, b := range bookmarks {
		if err := checkURL(b.URL); err != nil {
			return 0, err
		}
	}
	if len(bookmarks) == 0 {
		return 0, nil
	}

	now := s.now().UTC()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertQuery)
		if err != nil {
			return errors.Wrap(err, "failed to prepare upsert")
		}
		defer stmt.Close()

		for _, b := range bookmarks {
			path, candidates, err := encodeLists(b)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx,
				b.URL, b.Title, b.Alias, path, b.Category, b.Group, candidates,
				b.Score, b.Description, b.Date, now, now,
			); err != nil {
				return errors.Wrapf(err, "failed to upsert bookmark %s", b.URL)
			}
			if err := replaceTags(ctx, tx, b.URL, NormalizeTags(b.Tags)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Debugw("Stored bookmarks", logger.FieldCount, len(bookmarks))
	return len(bookmarks), nil
}

// Persist stores pipeline output, pairing suggestions with records by
// position (falling back to url).
func (s *Store) Persist(ctx context.Context, records []parser.FlatRecord, suggestions []analyzer.Suggestion) (int, error) {
	byURL := make(map[string]*analyzer.Suggestion, len(suggestions))
	for i := range suggestions {
		if _, ok := byURL[suggestions[i].URL]; !ok {
			byURL[suggestions[i].URL] = &suggestions[i]
		}
	}

	bookmarks := make([]Bookmark, 0, len(records))
	for i, rec := range records {
		var sug *analyzer.Suggestion
		if i < len(suggestions) && suggestions[i].URL == rec.URL {
			sug = &suggestions[i]
		} else {
			sug = byURL[rec.URL]
		}
		bookmarks = append(bookmarks, FromRecord(rec, sug))
	}
	return s.PutBatch(ctx, bookmarks)
}

// Get returns the bookmark stored under url.
func (s *Store) Get(ctx context.Context, url string) (*Bookmark, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM bookmarks WHERE url = ?`, url)
	b, err := scanBookmark(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("bookmark %s", url)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get bookmark")
	}

	tags, err := s.tagsFor(ctx, []string{url})
	if err != nil {
		return nil, err
	}
	b.Tags = orEmpty(tags[url])
	return b, nil
}

// Update applies patch to the bookmark stored under url.
func (s *Store) Update(ctx context.Context, url string, patch Patch) (*Bookmark, error) {
	if patch.Empty() {
		return nil, errors.NewInvalidRequestError("nothing to update")
	}

	var sets []string
	var args []any
	add := func(column string, v *string) {
		if v != nil {
			sets = append(sets, column+" = ?")
			args = append(args, *v)
		}
	}
	add("title", patch.Title)
	add("alias", patch.Alias)
	add("category", patch.Category)
	add("group_name", patch.Group)
	sets = append(sets, "updated_at = ?")
	args = append(args, s.now().UTC(), url)

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE bookmarks SET `+strings.Join(sets, ", ")+` WHERE url = ?`, args...)
		if err != nil {
			return errors.Wrap(err, "failed to update bookmark")
		}
		if n, err := res.RowsAffected(); err != nil {
			return errors.Wrap(err, "failed to update bookmark")
		} else if n == 0 {
			return errors.NewNotFoundError("bookmark %s", url)
		}
		if patch.Tags != nil {
			return replaceTags(ctx, tx, url, NormalizeTags(patch.Tags))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, url)
}

// Delete removes the bookmark stored under url.
func (s *Store) Delete(ctx context.Context, url string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bookmarks WHERE url = ?`, url)
	if err != nil {
		return errors.Wrap(err, "failed to delete bookmark")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to delete bookmark")
	}
	if n == 0 {
		return errors.NewNotFoundError("bookmark %s", url)
	}
	return nil
}

// List returns bookmarks ordered by creation time, then url.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Bookmark, error) {
	return s.query(ctx, `SELECT `+selectColumns+` FROM bookmarks
		ORDER BY created_at, url LIMIT ? OFFSET ?`, limitOf(opts), opts.Offset)
}

// ListByCategory returns the bookmarks in category.
func (s *Store) ListByCategory(ctx context.Context, category string) ([]Bookmark, error) {
	return s.query(ctx, `SELECT `+selectColumns+` FROM bookmarks
		WHERE category = ? ORDER BY created_at, url`, category)
}

// ListByTag returns the bookmarks tagged tag.
func (s *Store) ListByTag(ctx context.Context, tag string) ([]Bookmark, error) {
	return s.query(ctx, `SELECT `+prefixed("b.", selectColumns)+` FROM bookmarks b
		JOIN bookmark_tags t ON t.url = b.url
		WHERE t.tag = ? ORDER BY b.created_at, b.url`, strings.ToLower(strings.TrimSpace(tag)))
}

// Stats counts bookmarks, distinct tags and bookmarks per category.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{Categories: make(map[string]int)}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookmarks`).Scan(&st.Bookmarks); err != nil {
		return nil, errors.Wrap(err, "failed to count bookmarks")
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT tag) FROM bookmark_tags`).Scan(&st.Tags); err != nil {
		return nil, errors.Wrap(err, "failed to count tags")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT category, COUNT(*) FROM bookmarks GROUP BY category`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count categories")
	}
	defer rows.Close()
	for rows.Next() {
		var category string
		var n int
		if err := rows.Scan(&category, &n); err != nil {
			return nil, errors.Wrap(err, "failed to scan category count")
		}
		st.Categories[category] = n
	}
	return st, errors.Wrap(rows.Err(), "failed to count categories")
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]Bookmark, error) {
	out, urls, err := s.scanAll(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	// rows are closed by now; an in-memory database has a single connection
	tags, err := s.tagsFor(ctx, urls)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Tags = orEmpty(tags[out[i].URL])
	}
	return out, nil
}

func (s *Store) scanAll(ctx context.Context, query string, args ...any) ([]Bookmark, []string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to list bookmarks")
	}
	defer rows.Close()

	out := []Bookmark{}
	var urls []string
	for rows.Next() {
		b, err := scanBookmark(rows)
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to scan bookmark")
		}
		out = append(out, *b)
		urls = append(urls, b.URL)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, errors.Wrap(err, "failed to list bookmarks")
	}
	return out, urls, nil
}

// tagsChunk bounds the IN list of one tag query.
const tagsChunk = 500

func (s *Store) tagsFor(ctx context.Context, urls []string) (map[string][]string, error) {
	out := make(map[string][]string, len(urls))
	for len(urls) > 0 {
		n := min(len(urls), tagsChunk)
		if err := s.loadTags(ctx, urls[:n], out); err != nil {
			return nil, err
		}
		urls = urls[n:]
	}
	return out, nil
}

func (s *Store) loadTags(ctx context.Context, urls []string, out map[string][]string) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(urls)), ",")
	args := make([]any, len(urls))
	for i, u := range urls {
		args[i] = u
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT url, tag FROM bookmark_tags WHERE url IN (`+placeholders+`) ORDER BY url, tag`, args...)
	if err != nil {
		return errors.Wrap(err, "failed to load tags")
	}
	defer rows.Close()
	for rows.Next() {
		var url, tag string
		if err := rows.Scan(&url, &tag); err != nil {
			return errors.Wrap(err, "failed to scan tag")
		}
		out[url] = append(out[url], tag)
	}
	return errors.Wrap(rows.Err(), "failed to load tags")
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "failed to commit transaction")
}

func replaceTags(ctx context.Context, tx *sql.Tx, url string, tags []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM bookmark_tags WHERE url = ?`, url); err != nil {
		return errors.Wrap(err, "failed to clear tags")
	}
	for _, tag := range tags {
		if _, err := tx.ExecContext(ctx, `INSERT INTO bookmark_tags (url, tag) VALUES (?, ?)`, url, tag); err != nil {
			return errors.Wrapf(err, "failed to tag bookmark %s", url)
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBookmark(row scanner) (*Bookmark, error) {
	var b Bookmark
	var path, candidates string
	if err := row.Scan(
		&b.URL, &b.Title, &b.Alias, &path, &b.Category, &b.Group, &candidates,
		&b.Score, &b.Description, &b.Date, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(path), &b.Path); err != nil {
		return nil, errors.Wrapf(err, "decode path of %s", b.URL)
	}
	if err := json.Unmarshal([]byte(candidates), &b.AliasCandidates); err != nil {
		return nil, errors.Wrapf(err, "decode alias candidates of %s", b.URL)
	}
	if b.Path == nil {
		b.Path = []string{}
	}
	return &b, nil
}

func encodeLists(b Bookmark) (path, candidates string, err error) {
	p := b.Path
	if p == nil {
		p = []string{}
	}
	c := b.AliasCandidates
	if c == nil {
		c = []string{}
	}
	pj, err := json.Marshal(p)
	if err != nil {
		return "", "", errors.Wrap(err, "encode path")
	}
	cj, err := json.Marshal(c)
	if err != nil {
		return "", "", errors.Wrap(err, "encode alias candidates")
	}
	return string(pj), string(cj), nil
}

func checkURL(url string) error {
	if strings.TrimSpace(url) == "" {
		return errors.NewInvalidRequestError("bookmark url is required")
	}
	return nil
}

func limitOf(opts ListOptions) int {
	if opts.Limit <= 0 {
		return -1
	}
	return opts.Limit
}

func prefixed(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
