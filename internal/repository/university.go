package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Proton-105/craft-bot/internal/database"
	"github.com/Proton-105/craft-bot/internal/domain"
)

// UniversityRepository persists lessons and per-user progress.
type UniversityRepository interface {
	Lessons(ctx context.Context, userID int64) ([]domain.Lesson, error)
	GetActiveLesson(ctx context.Context, id int64) (*domain.Lesson, error)
	IsCompleted(ctx context.Context, userID, lessonID int64) (bool, error)
	Complete(ctx context.Context, userID, lessonID int64, score int, at time.Time) error
}

type universityRepository struct {
	q database.Querier
}

func NewUniversityRepository(q database.Querier) UniversityRepository {
	return &universityRepository{q: q}
}

// Lessons lists active lessons with the progress of userID (0 for anonymous).
func (r *universityRepository) Lessons(ctx context.Context, userID int64) ([]domain.Lesson, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT l.id, l.title, l.content, l.exam_questions, l.reward_caps, l.order_index,
			p.completed, p.score, p.completed_at
		FROM university_lessons l
		LEFT JOIN university_progress p ON p.lesson_id = l.id AND p.user_id = $1
		WHERE l.is_active = TRUE ORDER BY l.order_index, l.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("select lessons: %w", err)
	}
	defer rows.Close()

	var out []domain.Lesson
	for rows.Next() {
		var (
			l           domain.Lesson
			completed   sql.NullBool
			score       sql.NullInt64
			completedAt sql.NullTime
		)
		if err := rows.Scan(&l.ID, &l.Title, &l.Content, &l.ExamQuestions, &l.RewardCaps, &l.OrderIndex,
			&completed, &score, &completedAt); err != nil {
			return nil, fmt.Errorf("scan lesson: %w", err)
		}
		l.Completed = completed.Valid && completed.Bool
		if score.Valid {
			s := int(score.Int64)
			l.Score = &s
		}
		l.CompletedAt = nullTime(completedAt)
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *universityRepository) GetActiveLesson(ctx context.Context, id int64) (*domain.Lesson, error) {
	var l domain.Lesson
	err := r.q.QueryRowContext(ctx, `
		SELECT id, title, content, exam_questions, reward_caps, order_index
		FROM university_lessons WHERE id = $1 AND is_active = TRUE`, id,
	).Scan(&l.ID, &l.Title, &l.Content, &l.ExamQuestions, &l.RewardCaps, &l.OrderIndex)
	if err != nil {
		if err = notFound(err); err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("select lesson: %w", err)
	}
	return &l, nil
}

func (r *universityRepository) IsCompleted(ctx context.Context, userID, lessonID int64) (bool, error) {
	var completed bool
	err := r.q.QueryRowContext(ctx, `
		SELECT completed FROM university_progress WHERE user_id = $1 AND lesson_id = $2`,
		userID, lessonID).Scan(&completed)
	if err != nil {
		if notFound(err) == ErrNotFound {
			return false, nil
		}
		return false, fmt.Errorf("select lesson progress: %w", err)
	}
	return completed, nil
}

func (r *universityRepository) Complete(ctx context.Context, userID, lessonID int64, score int, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO university_progress (user_id, lesson_id, completed, score, attempts, completed_at)
		VALUES ($1, $2, TRUE, $3, 1, $4)
		ON CONFLICT (user_id, lesson_id) DO UPDATE
		SET completed = TRUE, score = excluded.score,
			attempts = university_progress.attempts + 1, completed_at = excluded.completed_at`,
		userID, lessonID, score, at)
	if err != nil {
		return fmt.Errorf("upsert lesson progress: %w", err)
	}
	return nil
}
