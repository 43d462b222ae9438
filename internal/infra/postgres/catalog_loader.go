package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"campus-sync-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// CatalogLoader reads the authored course catalog (courses + quizzes) from
// Postgres JSONB rows. The document store is seeded from it at startup; live
// traffic never touches Postgres.
type CatalogLoader struct {
	pool *pgxpool.Pool
}

func NewCatalogLoader(pool *pgxpool.Pool) *CatalogLoader {
	return &CatalogLoader{pool: pool}
}

func (l *CatalogLoader) LoadCourses(ctx context.Context) (map[string]domain.Course, error) {
	rows, err := l.pool.Query(ctx, `SELECT id, data FROM courses`)
	if err != nil {
		return nil, fmt.Errorf("load courses: %w", err)
	}
	defer rows.Close()

	out := map[string]domain.Course{}
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan course: %w", err)
		}
		var course domain.Course
		if err := json.Unmarshal(raw, &course); err != nil {
			return nil, fmt.Errorf("unmarshal course %s: %w", id, err)
		}
		course.ID = id
		out[id] = course
	}
	return out, rows.Err()
}

func (l *CatalogLoader) LoadQuizzes(ctx context.Context) (map[string]domain.Quiz, error) {
	rows, err := l.pool.Query(ctx, `SELECT id, data FROM quizzes`)
	if err != nil {
		return nil, fmt.Errorf("load quizzes: %w", err)
	}
	defer rows.Close()

	out := map[string]domain.Quiz{}
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		var quiz domain.Quiz
		if err := json.Unmarshal(raw, &quiz); err != nil {
			return nil, fmt.Errorf("unmarshal quiz %s: %w", id, err)
		}
		quiz.ID = id
		out[id] = quiz
	}
	return out, rows.Err()
}
