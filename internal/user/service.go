// Package user implements registration, profiles and balance history of Mini App users.
package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Proton-105/craft-bot/internal/database"
	"github.com/Proton-105/craft-bot/internal/domain"
	apperrors "github.com/Proton-105/craft-bot/internal/errors"
	"github.com/Proton-105/craft-bot/internal/i18n"
	"github.com/Proton-105/craft-bot/internal/ledger"
	"github.com/Proton-105/craft-bot/internal/referral"
	"github.com/Proton-105/craft-bot/internal/repository"
	"github.com/Proton-105/craft-bot/internal/telegram"
	"github.com/Proton-105/craft-bot/pkg/config"
)

var (
	// ErrAlreadyRegistered is returned by Register for a known telegram id.
	ErrAlreadyRegistered = errors.New("user already registered")
	// ErrUserLimit is returned when the system uid space is exhausted.
	ErrUserLimit = errors.New("maximum user limit reached")
)

// AchievementChecker re-evaluates achievements after a user action.
type AchievementChecker interface {
	Check(ctx context.Context, userID int64) ([]domain.Achievement, error)
}

// RegisterResult is the outcome of a registration or re-init.
type RegisterResult struct {
	User            *domain.User
	Exists          bool
	StartingBalance int64
	Referrer        *domain.User
}

// Profile is the user card of the Mini App.
type Profile struct {
	User         *domain.User
	Achievements []domain.EarnedAchievement
	Referrals    *domain.ReferralStats
}

// Service provides business operations over users.
type Service struct {
	db           *sql.DB
	cfg          config.ReferralConfig
	ledger       *ledger.Ledger
	referrals    *referral.Service
	achievements AchievementChecker
	notifier     telegram.Notifier
	tr           i18n.Translator
	log          *slog.Logger
	now          func() time.Time
}

// NewService constructs a new Service instance.
func NewService(
	db *sql.DB,
	cfg config.ReferralConfig,
	l *ledger.Ledger,
	referrals *referral.Service,
	achievements AchievementChecker,
	notifier telegram.Notifier,
	tr i18n.Translator,
	log *slog.Logger,
) *Service {
	if log == nil {
		log = slog.Default()
	}
	if tr == nil {
		tr = i18n.Default()
	}
	return &Service{
		db:           db,
		cfg:          cfg,
		ledger:       l,
		referrals:    referrals,
		achievements: achievements,
		notifier:     notifier,
		tr:           tr,
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Init is the /api/init entry point: a known user gets its activity refreshed and
// achievements re-checked, an unknown one is registered.
func (s *Service) Init(ctx context.Context, in domain.NewUser) (*RegisterResult, error) {
	if in.TelegramID == 0 {
		return nil, apperrors.NewValidationError("telegram_id required")
	}

	users := repository.NewUserRepository(s.db, s.log)

	existing, err := users.GetByTelegramID(ctx, in.TelegramID)
	switch {
	case err == nil:
		if err := users.TouchActivity(ctx, existing.ID, s.now()); err != nil {
			s.logError("init.touch", in.TelegramID, err)
		}
		s.checkAchievements(ctx, existing.ID)

		if fresh, err := users.GetByID(ctx, existing.ID); err == nil {
			existing = fresh
		}
		return &RegisterResult{User: existing, Exists: true}, nil
	case !errors.Is(err, repository.ErrNotFound):
		s.logError("init.find", in.TelegramID, err)
		return nil, apperrors.NewDatabaseError(err)
	}

	return s.Register(ctx, in)
}

// Register creates the user, credits the starting balance and the referral bonuses in one
// transaction. Notifications and the achievement check run after commit.
func (s *Service) Register(ctx context.Context, in domain.NewUser) (*RegisterResult, error) {
	var res *RegisterResult
	var credits []referral.Credit

	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		users := repository.NewUserRepository(tx, s.log)

		if _, err := users.GetByTelegramID(ctx, in.TelegramID); err == nil {
			return ErrAlreadyRegistered
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		referrer, err := s.referrals.ResolveReferrer(ctx, tx, in.TelegramID, strings.TrimSpace(in.ReferrerUID))
		if err != nil {
			return err
		}

		uid, err := s.nextSystemUID(ctx, users)
		if err != nil {
			return err
		}

		now := s.now()
		u := &domain.User{
			TelegramID: in.TelegramID,
			SystemUID:  uid,
			FirstName:  in.FirstName,
			LastName:   in.LastName,
			Username:   in.Username,
			Level:      domain.LevelBasic,
			CreatedAt:  now,
		}
		if referrer != nil {
			u.ReferrerID = &referrer.ID
		}
		if err := users.Create(ctx, u); err != nil {
			return err
		}

		starting := s.referrals.StartingBalance(referrer != nil)
		if starting > 0 {
			entry, err := s.ledger.Apply(ctx, tx, ledger.Operation{
				UserID:      u.ID,
				Amount:      starting,
				Kind:        domain.OpRegistrationBonus,
				Description: fmt.Sprintf("Регистрация (+%d стартовых крышек)", starting),
			})
			if err != nil {
				return err
			}
			u.Balance = entry.BalanceAfter
		}

		if err := repository.NewAIRepository(tx).CreateSession(ctx, &domain.AISession{
			UserID:       u.ID,
			SessionID:    uuid.NewString(),
			CreatedAt:    now,
			LastActivity: now,
		}); err != nil {
			return err
		}

		if credits, err = s.referrals.CreditSignup(ctx, tx, u, referrer); err != nil {
			return err
		}

		res = &RegisterResult{User: u, StartingBalance: starting, Referrer: referrer}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyRegistered) || errors.Is(err, ErrUserLimit) {
			return nil, err
		}
		s.logError("register", in.TelegramID, err)
		return nil, fmt.Errorf("register user: %w", err)
	}

	s.log.Info("user registered",
		slog.Int64("user_id", res.User.ID),
		slog.String("system_uid", res.User.SystemUID),
		slog.Bool("referred", res.Referrer != nil),
	)

	s.referrals.NotifySignup(ctx, res.User, credits)
	s.welcome(ctx, res)

	s.checkAchievements(ctx, res.User.ID)
	for _, c := range credits {
		s.checkAchievements(ctx, c.Referrer.ID)
	}

	return res, nil
}

func (s *Service) nextSystemUID(ctx context.Context, users repository.UserRepository) (string, error) {
	last, ok, err := users.LastNumericSystemUID(ctx)
	if err != nil {
		return "", err
	}

	next := s.cfg.StartingSystemUID
	if ok && last+1 > next {
		next = last + 1
	}
	if s.cfg.MaxSystemUID > 0 && next > s.cfg.MaxSystemUID {
		return "", ErrUserLimit
	}
	return fmt.Sprintf("%04d", next), nil
}

func (s *Service) welcome(ctx context.Context, res *RegisterResult) {
	if s.notifier == nil {
		return
	}

	text := s.tr.T("user.welcome", res.StartingBalance, res.User.SystemUID)
	if res.Referrer != nil {
		text = s.tr.T("user.welcome_referred", res.Referrer.DisplayName(), res.StartingBalance)
	}
	if err := s.notifier.SendMessage(ctx, res.User.TelegramID, text); err != nil {
		s.log.Warn("welcome notification failed", slog.Int64("telegram_id", res.User.TelegramID), slog.Any("error", err))
	}
}

func (s *Service) checkAchievements(ctx context.Context, userID int64) {
	if s.achievements == nil {
		return
	}
	if _, err := s.achievements.Check(ctx, userID); err != nil {
		s.log.Warn("achievement check failed", slog.Int64("user_id", userID), slog.Any("error", err))
	}
}

// GetByTelegramID loads a registered user.
func (s *Service) GetByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	u, err := repository.NewUserRepository(s.db, s.log).GetByTelegramID(ctx, telegramID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFoundError("User")
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	return u, nil
}

// Profile returns the user with earned achievements and the referral breakdown.
func (s *Service) Profile(ctx context.Context, telegramID int64) (*Profile, error) {
	u, err := s.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, err
	}

	earned, err := repository.NewAchievementRepository(s.db).Earned(ctx, u.ID)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	stats, err := s.referrals.Stats(ctx, s.db, u.ID, 0)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	return &Profile{User: u, Achievements: earned, Referrals: stats}, nil
}

// ReferralStats returns level counts, earnings and the latest referred users.
func (s *Service) ReferralStats(ctx context.Context, telegramID int64) (*domain.ReferralStats, error) {
	u, err := s.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, err
	}

	stats, err := s.referrals.Stats(ctx, s.db, u.ID, 20)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	return stats, nil
}

// BalanceHistory returns the newest ledger entries of the user.
func (s *Service) BalanceHistory(ctx context.Context, telegramID int64, filter domain.HistoryFilter) ([]domain.BalanceEntry, error) {
	u, err := s.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, err
	}

	entries, err := s.ledger.History(ctx, s.db, u.ID, filter, 50)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	return entries, nil
}

// CreatePendingReferral records a bot deep-link click. It returns the referrer when known.
func (s *Service) CreatePendingReferral(ctx context.Context, referredTelegramID, referrerTelegramID int64, clickerName string) (*domain.User, error) {
	referrer, created, err := s.referrals.CreatePending(ctx, s.db, referredTelegramID, referrerTelegramID, clickerName)
	if err != nil {
		s.logError("pending_referral", referredTelegramID, err)
		return nil, err
	}
	if created {
		s.log.Info("pending referral created",
			slog.Int64("telegram_id", referredTelegramID),
			slog.Int64("referrer_telegram_id", referrerTelegramID),
		)
	}
	return referrer, nil
}

// Count returns the number of registered users.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return repository.NewUserRepository(s.db, s.log).Count(ctx)
}

func (s *Service) logError(operation string, telegramID int64, err error) {
	if s == nil || s.log == nil || err == nil {
		return
	}

	s.log.Error("user service operation failed",
		slog.String("operation", operation),
		slog.Int64("telegram_id", telegramID),
		slog.Any("error", err),
	)
}
