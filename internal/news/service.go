// Package news manages paid daily news subscriptions and broadcasts.
package news

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/Proton-105/craft-bot/internal/database"
	"github.com/Proton-105/craft-bot/internal/domain"
	apperrors "github.com/Proton-105/craft-bot/internal/errors"
	"github.com/Proton-105/craft-bot/internal/i18n"
	"github.com/Proton-105/craft-bot/internal/ledger"
	"github.com/Proton-105/craft-bot/internal/repository"
	"github.com/Proton-105/craft-bot/internal/telegram"
)

// CostSource yields the current daily subscription price.
type CostSource interface {
	NewsDailyCost(ctx context.Context) int64
}

// ChargeReport summarizes one daily charge run.
type ChargeReport struct {
	Charged     int   `json:"charged"`
	Deactivated int   `json:"deactivated"`
	DailyCost   int64 `json:"daily_cost"`
}

// BroadcastReport summarizes one broadcast.
type BroadcastReport struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// Service provides subscription operations.
type Service struct {
	db       *sql.DB
	ledger   *ledger.Ledger
	costs    CostSource
	notifier telegram.Notifier
	pacing   time.Duration
	tr       i18n.Translator
	log      *slog.Logger
	now      func() time.Time
}

// NewService creates the news service. pacing is the delay between broadcast messages.
func NewService(db *sql.DB, l *ledger.Ledger, costs CostSource, notifier telegram.Notifier, pacing time.Duration, tr i18n.Translator, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if tr == nil {
		tr = i18n.Default()
	}
	return &Service{
		db:       db,
		ledger:   l,
		costs:    costs,
		notifier: notifier,
		pacing:   pacing,
		tr:       tr,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe activates the user's subscription. The balance must cover one day.
func (s *Service) Subscribe(ctx context.Context, telegramID int64) (string, error) {
	u, err := s.user(ctx, telegramID)
	if err != nil {
		return "", err
	}

	cost := s.costs.NewsDailyCost(ctx)
	if u.Balance < cost {
		return "", apperrors.NewBusinessError(s.tr.T("news.insufficient", cost))
	}

	if err := repository.NewNewsRepository(s.db).Subscribe(ctx, u.ID, u.TelegramID, s.now()); err != nil {
		return "", apperrors.NewDatabaseError(err)
	}
	s.log.Info("news subscription activated", slog.Int64("user_id", u.ID))
	return s.tr.T("news.subscribed"), nil
}

// Unsubscribe deactivates the user's subscription.
func (s *Service) Unsubscribe(ctx context.Context, telegramID int64) (string, error) {
	u, err := s.user(ctx, telegramID)
	if err != nil {
		return "", err
	}
	if err := repository.NewNewsRepository(s.db).Unsubscribe(ctx, u.ID); err != nil {
		return "", apperrors.NewDatabaseError(err)
	}
	return s.tr.T("news.unsubscribed"), nil
}

// Subscribers lists the active subscribers.
func (s *Service) Subscribers(ctx context.Context) ([]domain.Subscriber, error) {
	subs, err := repository.NewNewsRepository(s.db).ActiveSubscribers(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	return subs, nil
}

// ChargeDaily debits every active subscriber that can pay and deactivates the rest.
// Each subscriber is charged in its own transaction, so one failure does not undo
// the others.
func (s *Service) ChargeDaily(ctx context.Context) (*ChargeReport, error) {
	cost := s.costs.NewsDailyCost(ctx)
	report := &ChargeReport{DailyCost: cost}

	subs, err := repository.NewNewsRepository(s.db).ActiveSubscribers(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		charged, err := s.chargeOne(ctx, sub, cost)
		if err != nil {
			s.log.Error("charge news subscriber", slog.Int64("user_id", sub.UserID), slog.Any("error", err))
			continue
		}
		if charged {
			report.Charged++
			continue
		}

		report.Deactivated++
		if s.notifier != nil {
			if err := s.notifier.SendMessage(ctx, sub.TelegramID, s.tr.T("news.deactivated", cost)); err != nil {
				s.log.Warn("notify deactivated subscriber", slog.Int64("user_id", sub.UserID), slog.Any("error", err))
			}
		}
	}

	s.log.Info("news daily charge finished",
		slog.Int("charged", report.Charged),
		slog.Int("deactivated", report.Deactivated),
		slog.Int64("daily_cost", cost),
	)
	return report, nil
}

func (s *Service) chargeOne(ctx context.Context, sub domain.Subscriber, cost int64) (bool, error) {
	charged := false
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		u, err := repository.NewUserRepository(tx, s.log).GetByID(ctx, sub.UserID)
		if err != nil {
			return err
		}

		if u.Balance < cost {
			return repository.NewNewsRepository(tx).Unsubscribe(ctx, u.ID)
		}
		if cost > 0 {
			if _, err := s.ledger.Apply(ctx, tx, ledger.Operation{
				UserID:      u.ID,
				Amount:      -cost,
				Kind:        domain.OpNewsDailyCharge,
				Description: s.tr.T("news.charge"),
				Totals:      ledger.TotalsSpent,
			}); err != nil {
				return err
			}
		}
		charged = true
		return nil
	})
	return charged, err
}

// Broadcast sends message to every active subscriber, pausing between sends to stay
// under the Bot API flood limits.
func (s *Service) Broadcast(ctx context.Context, message string) (*BroadcastReport, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, apperrors.NewValidationError("message is required")
	}
	if s.notifier == nil {
		return nil, apperrors.NewStateError("broadcast without a telegram notifier")
	}

	subs, err := repository.NewNewsRepository(s.db).ActiveSubscribers(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	report := &BroadcastReport{}
	for i, sub := range subs {
		if i > 0 && s.pacing > 0 {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-time.After(s.pacing):
			}
		}

		if err := s.notifier.SendMessage(ctx, sub.TelegramID, message); err != nil {
			report.Failed++
			s.log.Warn("broadcast delivery failed", slog.Int64("telegram_id", sub.TelegramID), slog.Any("error", err))
			continue
		}
		report.Sent++
	}
	return report, nil
}

func (s *Service) user(ctx context.Context, telegramID int64) (*domain.User, error) {
	u, err := repository.NewUserRepository(s.db, s.log).GetByTelegramID(ctx, telegramID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFoundError("User")
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	return u, nil
}
