package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// KeywordRepo stores blacklist keywords. keyword_key is the lowercase form,
// so keywords are unique case-insensitively and the first spelling wins.
type KeywordRepo struct {
	db *sqlx.DB
}

var _ KeywordRepository = (*KeywordRepo)(nil)

// NewKeywordRepository creates a new keyword repository.
func NewKeywordRepository(db *sqlx.DB) *KeywordRepo {
	return &KeywordRepo{db: db}
}

// List returns every keyword in its stored spelling.
func (r *KeywordRepo) List(ctx context.Context) ([]string, error) {
	keywords := make([]string, 0)
	if err := r.db.SelectContext(ctx, &keywords, `SELECT keyword FROM blacklist_keywords ORDER BY keyword`); err != nil {
		return nil, fmt.Errorf("failed to list keywords: %w", err)
	}
	return keywords, nil
}

// Add inserts keywords in one transaction and returns how many were new.
func (r *KeywordRepo) Add(ctx context.Context, keywords ...string) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	added := 0
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		result, execErr := tx.ExecContext(ctx,
			`INSERT INTO blacklist_keywords (keyword_key, keyword) VALUES ($1, $2) ON CONFLICT (keyword_key) DO NOTHING`,
			strings.ToLower(kw), kw,
		)
		if execErr != nil {
			return 0, fmt.Errorf("failed to add keyword %q: %w", kw, execErr)
		}
		n, _ := result.RowsAffected()
		added += int(n)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit keywords: %w", err)
	}
	return added, nil
}

// Remove deletes a keyword regardless of case.
func (r *KeywordRepo) Remove(ctx context.Context, keyword string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM blacklist_keywords WHERE keyword_key = $1`,
		strings.ToLower(strings.TrimSpace(keyword)),
	)
	if err != nil {
		return false, fmt.Errorf("failed to remove keyword: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read removed count: %w", err)
	}
	return n > 0, nil
}
