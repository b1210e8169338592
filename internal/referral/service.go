// Package referral implements two-level referral attribution: fixed signup bonuses and
// percentage commissions on every purchase of a referred user.
package referral

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Proton-105/craft-bot/internal/database"
	"github.com/Proton-105/craft-bot/internal/domain"
	"github.com/Proton-105/craft-bot/internal/i18n"
	"github.com/Proton-105/craft-bot/internal/ledger"
	"github.com/Proton-105/craft-bot/internal/repository"
	"github.com/Proton-105/craft-bot/internal/telegram"
	"github.com/Proton-105/craft-bot/pkg/config"
)

// Credit is a caps credit paid to an upline member.
type Credit struct {
	Level    int
	Referrer *domain.User
	Amount   int64
}

// Service computes attribution and credits. Every method taking a Querier runs inside
// the caller's transaction; notifications are sent by the caller after commit.
type Service struct {
	cfg       config.ReferralConfig
	level1Pct decimal.Decimal
	level2Pct decimal.Decimal
	ledger    *ledger.Ledger
	notifier  telegram.Notifier
	tr        i18n.Translator
	log       *slog.Logger
	now       func() time.Time
}

// NewService parses the commission percents of cfg ("0.05" means 5%).
func NewService(cfg config.ReferralConfig, l *ledger.Ledger, notifier telegram.Notifier, tr i18n.Translator, log *slog.Logger) (*Service, error) {
	if log == nil {
		log = slog.Default()
	}
	if tr == nil {
		tr = i18n.Default()
	}

	l1, err := decimal.NewFromString(cfg.Level1Percent)
	if err != nil {
		return nil, fmt.Errorf("parse level1 percent: %w", err)
	}
	l2, err := decimal.NewFromString(cfg.Level2Percent)
	if err != nil {
		return nil, fmt.Errorf("parse level2 percent: %w", err)
	}

	return &Service{
		cfg:       cfg,
		level1Pct: l1,
		level2Pct: l2,
		ledger:    l,
		notifier:  notifier,
		tr:        tr,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// StartingBalance is the registration credit of a new user.
func (s *Service) StartingBalance(referred bool) int64 {
	if referred {
		return s.cfg.BoostedBalance
	}
	return s.cfg.BaseBalance
}

// Commission returns max(1, round(pct*total)), rounding half away from zero.
// A non-positive total earns nothing.
func Commission(total int64, pct decimal.Decimal) int64 {
	if total <= 0 {
		return 0
	}
	c := decimal.NewFromInt(total).Mul(pct).Round(0).IntPart()
	if c < 1 {
		return 1
	}
	return c
}

// ResolveReferrer picks the inviter of a user about to register: an unprocessed pending
// deep-link referral wins over the referrer uid sent by the Mini App. Any pending rows
// of the clicker are marked processed. A referrer equal to the registering user is ignored.
func (s *Service) ResolveReferrer(ctx context.Context, q database.Querier, telegramID int64, referrerUID string) (*domain.User, error) {
	users := repository.NewUserRepository(q, s.log)
	refs := repository.NewReferralRepository(q)

	var referrer *domain.User

	pending, err := refs.FindPending(ctx, telegramID)
	switch {
	case err == nil:
		referrer, err = users.GetByTelegramID(ctx, pending.ReferrerTelegramID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("load pending referrer: %w", err)
		}
		if err := refs.MarkPendingProcessed(ctx, telegramID); err != nil {
			return nil, err
		}
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	if referrer == nil && referrerUID != "" {
		referrer, err = users.GetBySystemUID(ctx, referrerUID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("load referrer by uid: %w", err)
		}
	}

	if referrer == nil || referrer.TelegramID == telegramID {
		return nil, nil
	}
	return referrer, nil
}

// CreditSignup creates the level-1 edge to referrer and, when the referrer has an inviter
// of its own, the level-2 edge, crediting the fixed bonuses through the ledger.
func (s *Service) CreditSignup(ctx context.Context, q database.Querier, newUser, referrer *domain.User) ([]Credit, error) {
	if referrer == nil || newUser == nil || referrer.ID == newUser.ID {
		return nil, nil
	}

	users := repository.NewUserRepository(q, s.log)

	credit, err := s.creditEdge(ctx, q, newUser, referrer, 1, s.level1Pct, s.cfg.Level1Bonus)
	if err != nil {
		return nil, err
	}
	credits := []Credit{credit}

	if referrer.ReferrerID == nil || *referrer.ReferrerID == newUser.ID {
		return credits, nil
	}

	upline, err := users.GetByID(ctx, *referrer.ReferrerID)
	if errors.Is(err, repository.ErrNotFound) {
		return credits, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load level2 referrer: %w", err)
	}

	credit, err = s.creditEdge(ctx, q, newUser, upline, 2, s.level2Pct, s.cfg.Level2Bonus)
	if err != nil {
		return nil, err
	}
	return append(credits, credit), nil
}

func (s *Service) creditEdge(ctx context.Context, q database.Querier, newUser, referrer *domain.User, level int, pct decimal.Decimal, bonus int64) (Credit, error) {
	created, err := repository.NewReferralRepository(q).Create(ctx, &domain.Referral{
		ReferrerID:        referrer.ID,
		ReferredID:        newUser.ID,
		Level:             level,
		CommissionPercent: pct.Mul(decimal.NewFromInt(100)).InexactFloat64(),
		CapsEarned:        bonus,
		CreatedAt:         s.now(),
	})
	if err != nil {
		return Credit{}, err
	}
	if !created {
		return Credit{Level: level, Referrer: referrer}, nil
	}

	if bonus > 0 {
		if _, err := s.ledger.Apply(ctx, q, ledger.Operation{
			UserID:      referrer.ID,
			Amount:      bonus,
			Kind:        domain.OpReferralBonus,
			Description: fmt.Sprintf("Реферал %d-го уровня (#%d)", level, newUser.ID),
			Totals:      ledger.TotalsEarned,
		}); err != nil {
			return Credit{}, fmt.Errorf("credit level%d bonus: %w", level, err)
		}
	}

	return Credit{Level: level, Referrer: referrer, Amount: bonus}, nil
}

// CreditPurchase pays the level-1 and level-2 commissions on a purchase of total caps by buyer.
func (s *Service) CreditPurchase(ctx context.Context, q database.Querier, buyer *domain.User, total int64) ([]Credit, error) {
	if buyer == nil || buyer.ReferrerID == nil || total <= 0 {
		return nil, nil
	}

	users := repository.NewUserRepository(q, s.log)

	var credits []Credit
	uplineID := buyer.ReferrerID
	for level, pct := range []decimal.Decimal{s.level1Pct, s.level2Pct} {
		if uplineID == nil || *uplineID == buyer.ID {
			break
		}

		referrer, err := users.GetByID(ctx, *uplineID)
		if errors.Is(err, repository.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("load purchase referrer: %w", err)
		}

		amount := Commission(total, pct)
		desc := fmt.Sprintf("%s%% от покупки реферала (#%d): %d крышек", percentLabel(pct), buyer.ID, total)
		if level == 1 {
			desc = fmt.Sprintf("%s%% от покупки реферала L2 (#%d): %d крышек", percentLabel(pct), buyer.ID, total)
		}

		if _, err := s.ledger.Apply(ctx, q, ledger.Operation{
			UserID:      referrer.ID,
			Amount:      amount,
			Kind:        domain.OpReferralPurchase,
			Description: desc,
			Totals:      ledger.TotalsEarned,
		}); err != nil {
			return nil, fmt.Errorf("credit level%d commission: %w", level+1, err)
		}

		credits = append(credits, Credit{Level: level + 1, Referrer: referrer, Amount: amount})
		uplineID = referrer.ReferrerID
	}

	return credits, nil
}

func percentLabel(pct decimal.Decimal) string {
	return pct.Mul(decimal.NewFromInt(100)).String()
}

// NotifySignup tells each credited upline member about the new registration. Best effort.
func (s *Service) NotifySignup(ctx context.Context, newUser *domain.User, credits []Credit) {
	for _, c := range credits {
		if c.Amount == 0 {
			continue
		}
		key := "referral.level1"
		if c.Level == 2 {
			key = "referral.level2"
		}
		s.notify(ctx, c.Referrer.TelegramID, s.tr.T(key, newUser.DisplayName(), c.Amount))
	}
}

// NotifyCommission tells each credited upline member about a purchase commission. Best effort.
func (s *Service) NotifyCommission(ctx context.Context, credits []Credit) {
	for _, c := range credits {
		s.notify(ctx, c.Referrer.TelegramID, s.tr.T("referral.commission", c.Level, c.Amount))
	}
}

func (s *Service) notify(ctx context.Context, chatID int64, text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendMessage(ctx, chatID, text); err != nil {
		s.log.Warn("referral notification failed", slog.Int64("chat_id", chatID), slog.Any("error", err))
	}
}

// CreatePending records a bot deep-link click of referredTelegramID on referrerTelegramID's
// link. Nothing is recorded for self-clicks, already registered clickers or repeated clicks.
// The referrer is notified when a row is created.
func (s *Service) CreatePending(ctx context.Context, q database.Querier, referredTelegramID, referrerTelegramID int64, clickerName string) (*domain.User, bool, error) {
	if referredTelegramID == referrerTelegramID {
		return nil, false, nil
	}

	users := repository.NewUserRepository(q, s.log)
	refs := repository.NewReferralRepository(q)

	referrer, err := users.GetByTelegramID(ctx, referrerTelegramID)
	if errors.Is(err, repository.ErrNotFound) {
		referrer = nil
	} else if err != nil {
		return nil, false, fmt.Errorf("load referrer: %w", err)
	}

	_, err = users.GetByTelegramID(ctx, referredTelegramID)
	if err == nil {
		return referrer, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, fmt.Errorf("load clicker: %w", err)
	}

	exists, err := refs.PendingExists(ctx, referredTelegramID, referrerTelegramID)
	if err != nil || exists {
		return referrer, false, err
	}

	created, err := refs.CreatePending(ctx, referredTelegramID, referrerTelegramID, s.now())
	if err != nil {
		return nil, false, err
	}

	if created && referrer != nil {
		s.notify(ctx, referrer.TelegramID, s.tr.T("referral.pending", clickerName, s.cfg.Level1Bonus))
	}
	return referrer, created, nil
}

// Stats summarizes the downline of userID.
func (s *Service) Stats(ctx context.Context, q database.Querier, userID int64, recent int) (*domain.ReferralStats, error) {
	refs := repository.NewReferralRepository(q)

	summary, err := refs.Summary(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats := &domain.ReferralStats{}
	for _, row := range summary {
		switch row.Level {
		case 1:
			stats.Level1Count = row.Count
		case 2:
			stats.Level2Count = row.Count
		}
		stats.TotalEarned += row.CapsEarned
	}

	if recent > 0 {
		if stats.Recent, err = refs.Recent(ctx, userID, recent); err != nil {
			return nil, err
		}
	}
	return stats, nil
}

// Level1Bonus and Level2Bonus are shown in the /ref message.
func (s *Service) Level1Bonus() int64 { return s.cfg.Level1Bonus }
func (s *Service) Level2Bonus() int64 { return s.cfg.Level2Bonus }
