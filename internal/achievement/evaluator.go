// Package achievement awards one-time achievement rewards from the user's current aggregates.
package achievement

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
	"github.com/Proton-105/craft-bot/internal/ledger"
	"github.com/Proton-105/craft-bot/internal/repository"
)

// Evaluator re-checks every rule and awards what is newly satisfied. It is safe to call
// redundantly and concurrently: the unique (user, achievement) pair decides who pays.
type Evaluator struct {
	db     *sql.DB
	ledger *ledger.Ledger
	rules  map[string]Rule
	log    *slog.Logger
	now    func() time.Time
}

// NewEvaluator creates an evaluator over the default Rules.
func NewEvaluator(db *sql.DB, l *ledger.Ledger, log *slog.Logger) *Evaluator {
	if log == nil {
		log = slog.Default()
	}
	return &Evaluator{
		db:     db,
		ledger: l,
		rules:  Rules,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Check awards every satisfied, not yet earned achievement and returns the new ones.
func (e *Evaluator) Check(ctx context.Context, userID int64) ([]domain.Achievement, error) {
	repo := repository.NewAchievementRepository(e.db)

	stats, err := repo.Stats(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load achievement stats: %w", err)
	}

	catalog, err := repo.ActiveCatalog(ctx)
	if err != nil {
		return nil, err
	}

	earned, err := repo.EarnedCodes(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	var awarded []domain.Achievement
	for _, a := range catalog {
		rule, ok := e.rules[a.Code]
		if !ok || earned[a.Code] || !rule(*stats, now) {
			continue
		}

		won, err := e.award(ctx, userID, a, now)
		if err != nil {
			return awarded, err
		}
		if won {
			awarded = append(awarded, a)
		}
	}

	if len(awarded) > 0 {
		codes := make([]string, 0, len(awarded))
		for _, a := range awarded {
			codes = append(codes, a.Code)
		}
		e.log.Info("achievements awarded", slog.Int64("user_id", userID), slog.Any("codes", codes))
	}

	return awarded, nil
}

// award inserts the pair and credits the reward only when this call inserted it.
func (e *Evaluator) award(ctx context.Context, userID int64, a domain.Achievement, now time.Time) (bool, error) {
	var won bool
	err := database.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		inserted, err := repository.NewAchievementRepository(tx).Award(ctx, userID, a.ID, now)
		if err != nil || !inserted {
			return err
		}
		won = true

		if a.RewardCaps <= 0 {
			return nil
		}
		_, err = e.ledger.Apply(ctx, tx, ledger.Operation{
			UserID:      userID,
			Amount:      a.RewardCaps,
			Kind:        domain.OpAchievementReward,
			Description: "Достижение: " + a.Name,
			Totals:      ledger.TotalsEarned,
		})
		return err
	})
	if err != nil {
		return false, fmt.Errorf("award achievement %s: %w", a.Code, err)
	}
	return won, nil
}

// List returns the active catalog with the user's earned flags.
func (e *Evaluator) List(ctx context.Context, userID int64) ([]domain.EarnedAchievement, error) {
	list, err := repository.NewAchievementRepository(e.db).ListForUser(ctx, userID)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	return list, nil
}
