// Package university serves lessons and pays the reward for a passed quiz.
package university

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Proton-105/craft-bot/internal/database"
	"github.com/Proton-105/craft-bot/internal/domain"
	apperrors "github.com/Proton-105/craft-bot/internal/errors"
	"github.com/Proton-105/craft-bot/internal/i18n"
	"github.com/Proton-105/craft-bot/internal/ledger"
	"github.com/Proton-105/craft-bot/internal/repository"
)

// AchievementChecker re-evaluates achievements after a lesson.
type AchievementChecker interface {
	Check(ctx context.Context, userID int64) ([]domain.Achievement, error)
}

// Completion is the outcome of a lesson submission.
type Completion struct {
	AlreadyCompleted bool
	Reward           int64
	Message          string
}

// Service provides lesson operations.
type Service struct {
	db           *sql.DB
	ledger       *ledger.Ledger
	achievements AchievementChecker
	tr           i18n.Translator
	log          *slog.Logger
	now          func() time.Time
}

// NewService creates the university service.
func NewService(db *sql.DB, l *ledger.Ledger, achievements AchievementChecker, tr i18n.Translator, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if tr == nil {
		tr = i18n.Default()
	}
	return &Service{
		db:           db,
		ledger:       l,
		achievements: achievements,
		tr:           tr,
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Lessons lists the active lessons with the user's progress. An unknown telegramID
// gets the plain list.
func (s *Service) Lessons(ctx context.Context, telegramID int64) ([]domain.Lesson, error) {
	var userID int64
	if u, err := repository.NewUserRepository(s.db, s.log).GetByTelegramID(ctx, telegramID); err == nil {
		userID = u.ID
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewDatabaseError(err)
	}

	lessons, err := repository.NewUniversityRepository(s.db).Lessons(ctx, userID)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	return lessons, nil
}

// Complete records a passed lesson and credits its reward once. A quiz with total > 0
// passes only with every answer right.
func (s *Service) Complete(ctx context.Context, telegramID, lessonID int64, score, total int) (*Completion, error) {
	if lessonID <= 0 {
		return nil, apperrors.NewValidationError("lesson_id required")
	}

	var res *Completion
	var userID int64

	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		u, err := repository.NewUserRepository(tx, s.log).GetByTelegramID(ctx, telegramID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFoundError("User")
		}
		if err != nil {
			return err
		}
		userID = u.ID

		repo := repository.NewUniversityRepository(tx)
		lesson, err := repo.GetActiveLesson(ctx, lessonID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFoundError("Lesson")
		}
		if err != nil {
			return err
		}

		done, err := repo.IsCompleted(ctx, u.ID, lessonID)
		if err != nil {
			return err
		}
		if done {
			res = &Completion{AlreadyCompleted: true, Message: s.tr.T("university.already_completed")}
			return nil
		}

		if total > 0 && score < total {
			return apperrors.NewBusinessError(s.tr.T("university.answer_all", score, total))
		}

		if err := repo.Complete(ctx, u.ID, lessonID, score, s.now()); err != nil {
			return err
		}

		if lesson.RewardCaps > 0 {
			if _, err := s.ledger.Apply(ctx, tx, ledger.Operation{
				UserID:      u.ID,
				Amount:      lesson.RewardCaps,
				Kind:        domain.OpLessonReward,
				Description: fmt.Sprintf("Урок пройден: #%d", lessonID),
				Totals:      ledger.TotalsEarned,
			}); err != nil {
				return err
			}
		}

		res = &Completion{Reward: lesson.RewardCaps, Message: s.tr.T("university.completed", lesson.RewardCaps)}
		return nil
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		s.log.Error("lesson completion failed",
			slog.Int64("telegram_id", telegramID),
			slog.Int64("lesson_id", lessonID),
			slog.Any("error", err),
		)
		return nil, apperrors.NewDatabaseError(err)
	}

	if !res.AlreadyCompleted && s.achievements != nil {
		if _, err := s.achievements.Check(ctx, userID); err != nil {
			s.log.Warn("achievement check failed", slog.Int64("user_id", userID), slog.Any("error", err))
		}
	}
	return res, nil
}
