package database

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"
)

// UpsertEmbedding stores or replaces a vector in the semantic index.
func (db *DB) UpsertEmbedding(ctx context.Context, rec EmbeddingRecord) error {
	vec, err := json.Marshal(rec.Vector)
	if err != nil {
		return fmt.Errorf("encoding vector: %w", err)
	}
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO article_embeddings (id, source, title, vector, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source = excluded.source,
			title = excluded.title,
			vector = excluded.vector,
			created_at = excluded.created_at`,
		rec.ID, rec.Source, rec.Title, string(vec), FormatTime(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting embedding: %w", err)
	}
	return nil
}

// NearestEmbeddings returns up to topK vectors created at or after since,
// ranked by cosine similarity to vec.
func (db *DB) NearestEmbeddings(ctx context.Context, vec []float64, since time.Time, topK int) ([]EmbeddingMatch, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, source, title, vector FROM article_embeddings WHERE created_at >= ?",
		FormatTime(since),
	)
	if err != nil {
		return nil, fmt.Errorf("querying embeddings: %w", err)
	}
	defer rows.Close()

	var matches []EmbeddingMatch
	for rows.Next() {
		var (
			m   EmbeddingMatch
			raw string
		)
		if err := rows.Scan(&m.ID, &m.Source, &m.Title, &raw); err != nil {
			return nil, err
		}
		var other []float64
		if err := json.Unmarshal([]byte(raw), &other); err != nil {
			continue
		}
		m.Score = Cosine(vec, other)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Cosine returns the cosine similarity of a and b, or 0 when they differ in
// length or either is a zero vector.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
