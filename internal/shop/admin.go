package shop

import (
	"context"
	"errors"
	"strings"

	"github.com/Proton-105/craft-bot/internal/domain"
	apperrors "github.com/Proton-105/craft-bot/internal/errors"
	"github.com/Proton-105/craft-bot/internal/repository"
)

// AllItems lists the whole catalog including hidden items.
func (s *Service) AllItems(ctx context.Context) ([]domain.ShopItem, error) {
	items, err := repository.NewShopRepository(s.db).AllItems(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	return items, nil
}

// CreateItem adds a catalog item.
func (s *Service) CreateItem(ctx context.Context, it *domain.ShopItem) error {
	if err := validateItem(it); err != nil {
		return err
	}
	it.CreatedAt = s.now()
	if err := repository.NewShopRepository(s.db).CreateItem(ctx, it); err != nil {
		return apperrors.NewDatabaseError(err)
	}
	return nil
}

// UpdateItem overwrites a catalog item.
func (s *Service) UpdateItem(ctx context.Context, it *domain.ShopItem) error {
	if it.ID == 0 {
		return apperrors.NewValidationError("id required")
	}
	if err := validateItem(it); err != nil {
		return err
	}
	err := repository.NewShopRepository(s.db).UpdateItem(ctx, it)
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFoundError("Item")
	}
	if err != nil {
		return apperrors.NewDatabaseError(err)
	}
	return nil
}

// DeleteItem hides an item from the catalog.
func (s *Service) DeleteItem(ctx context.Context, id int64) error {
	err := repository.NewShopRepository(s.db).DeactivateItem(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFoundError("Item")
	}
	if err != nil {
		return apperrors.NewDatabaseError(err)
	}
	return nil
}

func validateItem(it *domain.ShopItem) error {
	it.Title = strings.TrimSpace(it.Title)
	it.Category = strings.TrimSpace(it.Category)
	switch {
	case it.Title == "":
		return apperrors.NewValidationError("title required")
	case it.Category == "":
		return apperrors.NewValidationError("category required")
	case it.PriceCaps < 0:
		return apperrors.NewValidationError("price_caps must be non-negative")
	}
	return nil
}
