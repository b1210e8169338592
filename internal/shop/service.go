// Package shop implements the caps shop: catalog, cart, checkout and delivery.
package shop

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Proton-105/craft-bot/internal/database"
	"github.com/Proton-105/craft-bot/internal/domain"
	apperrors "github.com/Proton-105/craft-bot/internal/errors"
	"github.com/Proton-105/craft-bot/internal/i18n"
	"github.com/Proton-105/craft-bot/internal/ledger"
	"github.com/Proton-105/craft-bot/internal/referral"
	"github.com/Proton-105/craft-bot/internal/repository"
	"github.com/Proton-105/craft-bot/internal/telegram"
	"github.com/Proton-105/craft-bot/pkg/metrics"
)

// AchievementChecker re-evaluates achievements after a purchase.
type AchievementChecker interface {
	Check(ctx context.Context, userID int64) ([]domain.Achievement, error)
}

// Cart is the user's staged items with their total price.
type Cart struct {
	Lines []domain.CartLine
	Total int64
}

// CheckoutResult is the outcome of a successful checkout.
type CheckoutResult struct {
	TotalSpent int64
	NewBalance int64
	Items      []domain.ShopItem
}

// Service provides shop operations.
type Service struct {
	db           *sql.DB
	ledger       *ledger.Ledger
	referrals    *referral.Service
	achievements AchievementChecker
	notifier     telegram.Notifier
	tr           i18n.Translator
	log          *slog.Logger
	now          func() time.Time
}

// NewService constructs the shop service.
func NewService(
	db *sql.DB,
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
		ledger:       l,
		referrals:    referrals,
		achievements: achievements,
		notifier:     notifier,
		tr:           tr,
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Catalog returns the active items grouped by category.
func (s *Service) Catalog(ctx context.Context) (map[string][]domain.ShopItem, error) {
	items, err := repository.NewShopRepository(s.db).ActiveItems(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	grouped := make(map[string][]domain.ShopItem)
	for _, it := range items {
		grouped[it.Category] = append(grouped[it.Category], it)
	}
	return grouped, nil
}

// AddToCart stages an active item. Adding an item twice keeps one line.
func (s *Service) AddToCart(ctx context.Context, telegramID, itemID int64) error {
	u, err := s.user(ctx, telegramID)
	if err != nil {
		return err
	}

	repo := repository.NewShopRepository(s.db)
	item, err := repo.GetItem(ctx, itemID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !item.IsActive) {
		return apperrors.NewNotFoundError("Item")
	}
	if err != nil {
		return apperrors.NewDatabaseError(err)
	}

	if err := repo.AddToCart(ctx, u.ID, itemID, s.now()); err != nil {
		return apperrors.NewDatabaseError(err)
	}
	return nil
}

// RemoveFromCart drops an item from the cart.
func (s *Service) RemoveFromCart(ctx context.Context, telegramID, itemID int64) error {
	u, err := s.user(ctx, telegramID)
	if err != nil {
		return err
	}
	if err := repository.NewShopRepository(s.db).RemoveFromCart(ctx, u.ID, itemID); err != nil {
		return apperrors.NewDatabaseError(err)
	}
	return nil
}

// Cart returns the user's cart.
func (s *Service) Cart(ctx context.Context, telegramID int64) (*Cart, error) {
	u, err := s.user(ctx, telegramID)
	if err != nil {
		return nil, err
	}

	lines, err := repository.NewShopRepository(s.db).Cart(ctx, u.ID)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	return &Cart{Lines: lines, Total: total(lines)}, nil
}

// Purchases returns the user's purchases, newest first.
func (s *Service) Purchases(ctx context.Context, telegramID int64) ([]domain.Purchase, error) {
	u, err := s.user(ctx, telegramID)
	if err != nil {
		return nil, err
	}

	purchases, err := repository.NewShopRepository(s.db).Purchases(ctx, u.ID)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	return purchases, nil
}

// Checkout buys the whole cart or nothing. The debit, one purchase row per line, the
// cart clear and the referral commissions share one transaction; delivery, commission
// notifications and the achievement check run after commit and never undo it.
func (s *Service) Checkout(ctx context.Context, telegramID int64) (*CheckoutResult, error) {
	var (
		res     *CheckoutResult
		buyer   *domain.User
		credits []referral.Credit
	)

	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		u, err := repository.NewUserRepository(tx, s.log).GetByTelegramID(ctx, telegramID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFoundError("User")
		}
		if err != nil {
			return err
		}
		buyer = u

		shop := repository.NewShopRepository(tx)
		lines, err := shop.Cart(ctx, u.ID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return apperrors.NewBusinessError(s.tr.T("shop.cart_empty"))
		}

		sum := total(lines)
		if u.Balance < sum {
			return apperrors.NewBusinessError(s.tr.T("shop.insufficient", sum, u.Balance))
		}

		titles := make([]string, len(lines))
		items := make([]domain.ShopItem, len(lines))
		for i, l := range lines {
			titles[i] = l.Item.Title
			items[i] = l.Item
		}

		entry, err := s.ledger.Apply(ctx, tx, ledger.Operation{
			UserID:      u.ID,
			Amount:      -sum,
			Kind:        domain.OpShopPurchase,
			Description: "Покупка: " + strings.Join(titles, ", "),
			Totals:      ledger.TotalsSpent,
		})
		if err != nil {
			return err
		}

		now := s.now()
		for _, l := range lines {
			if err := shop.InsertPurchase(ctx, &domain.Purchase{
				UserID:      u.ID,
				ItemID:      l.ItemID,
				PricePaid:   l.Item.PriceCaps,
				PurchasedAt: now,
			}); err != nil {
				return err
			}
		}

		if err := shop.ClearCart(ctx, u.ID); err != nil {
			return err
		}

		if credits, err = s.referrals.CreditPurchase(ctx, tx, u, sum); err != nil {
			return err
		}

		res = &CheckoutResult{TotalSpent: sum, NewBalance: entry.BalanceAfter, Items: items}
		return nil
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			metrics.RecordCheckout("rejected")
			return nil, appErr
		}
		metrics.RecordCheckout("failed")
		s.log.Error("checkout failed", slog.Int64("telegram_id", telegramID), slog.Any("error", err))
		return nil, apperrors.NewDatabaseError(fmt.Errorf("checkout: %w", err))
	}

	metrics.RecordCheckout("success")
	s.log.Info("checkout completed",
		slog.Int64("user_id", buyer.ID),
		slog.Int("items", len(res.Items)),
		slog.Int64("total", res.TotalSpent),
	)

	s.referrals.NotifyCommission(ctx, credits)
	for _, it := range res.Items {
		s.deliver(ctx, buyer.TelegramID, it)
	}
	if s.achievements != nil {
		if _, err := s.achievements.Check(ctx, buyer.ID); err != nil {
			s.log.Warn("achievement check failed", slog.Int64("user_id", buyer.ID), slog.Any("error", err))
		}
	}

	return res, nil
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

func total(lines []domain.CartLine) int64 {
	var sum int64
	for _, l := range lines {
		sum += l.Item.PriceCaps
	}
	return sum
}
