package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Proton-105/craft-bot/internal/database"
	"github.com/Proton-105/craft-bot/internal/domain"
)

// ShopRepository persists the catalog, carts and purchases.
type ShopRepository interface {
	ActiveItems(ctx context.Context) ([]domain.ShopItem, error)
	AllItems(ctx context.Context) ([]domain.ShopItem, error)
	GetItem(ctx context.Context, id int64) (*domain.ShopItem, error)
	CreateItem(ctx context.Context, item *domain.ShopItem) error
	UpdateItem(ctx context.Context, item *domain.ShopItem) error
	DeactivateItem(ctx context.Context, id int64) error

	AddToCart(ctx context.Context, userID, itemID int64, at time.Time) error
	RemoveFromCart(ctx context.Context, userID, itemID int64) error
	Cart(ctx context.Context, userID int64) ([]domain.CartLine, error)
	ClearCart(ctx context.Context, userID int64) error

	InsertPurchase(ctx context.Context, p *domain.Purchase) error
	Purchases(ctx context.Context, userID int64) ([]domain.Purchase, error)
}

type shopRepository struct {
	q database.Querier
}

func NewShopRepository(q database.Querier) ShopRepository {
	return &shopRepository{q: q}
}

const itemColumns = `id, category, title, description, price_caps, content_text, file_url, file_type, is_active, created_at`

func scanItem(row interface{ Scan(...any) error }, it *domain.ShopItem) error {
	return row.Scan(&it.ID, &it.Category, &it.Title, &it.Description, &it.PriceCaps,
		&it.ContentText, &it.FileURL, &it.FileType, &it.IsActive, &it.CreatedAt)
}

func (r *shopRepository) listItems(ctx context.Context, query string) ([]domain.ShopItem, error) {
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select shop items: %w", err)
	}
	defer rows.Close()

	var out []domain.ShopItem
	for rows.Next() {
		var it domain.ShopItem
		if err := scanItem(rows, &it); err != nil {
			return nil, fmt.Errorf("scan shop item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *shopRepository) ActiveItems(ctx context.Context) ([]domain.ShopItem, error) {
	return r.listItems(ctx, `SELECT `+itemColumns+` FROM shop_items WHERE is_active = TRUE ORDER BY category, id`)
}

func (r *shopRepository) AllItems(ctx context.Context) ([]domain.ShopItem, error) {
	return r.listItems(ctx, `SELECT `+itemColumns+` FROM shop_items ORDER BY id`)
}

func (r *shopRepository) GetItem(ctx context.Context, id int64) (*domain.ShopItem, error) {
	var it domain.ShopItem
	if err := scanItem(r.q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM shop_items WHERE id = $1`, id), &it); err != nil {
		if err = notFound(err); err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("select shop item: %w", err)
	}
	return &it, nil
}

func (r *shopRepository) CreateItem(ctx context.Context, it *domain.ShopItem) error {
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO shop_items (category, title, description, price_caps, content_text, file_url, file_type, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		it.Category, it.Title, it.Description, it.PriceCaps, it.ContentText, it.FileURL, it.FileType, it.IsActive, it.CreatedAt,
	).Scan(&it.ID)
	if err != nil {
		return fmt.Errorf("insert shop item: %w", err)
	}
	return nil
}

func (r *shopRepository) UpdateItem(ctx context.Context, it *domain.ShopItem) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE shop_items SET category = $1, title = $2, description = $3, price_caps = $4,
			content_text = $5, file_url = $6, file_type = $7, is_active = $8
		WHERE id = $9`,
		it.Category, it.Title, it.Description, it.PriceCaps, it.ContentText, it.FileURL, it.FileType, it.IsActive, it.ID)
	if err != nil {
		return fmt.Errorf("update shop item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeactivateItem hides the item; purchases keep referencing it.
func (r *shopRepository) DeactivateItem(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, `UPDATE shop_items SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate shop item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *shopRepository) AddToCart(ctx context.Context, userID, itemID int64, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO user_cart (user_id, item_id, added_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, item_id) DO NOTHING`, userID, itemID, at)
	if err != nil {
		return fmt.Errorf("insert cart line: %w", err)
	}
	return nil
}

func (r *shopRepository) RemoveFromCart(ctx context.Context, userID, itemID int64) error {
	if _, err := r.q.ExecContext(ctx,
		`DELETE FROM user_cart WHERE user_id = $1 AND item_id = $2`, userID, itemID); err != nil {
		return fmt.Errorf("delete cart line: %w", err)
	}
	return nil
}

// Cart returns the cart lines joined with their items in insertion order.
func (r *shopRepository) Cart(ctx context.Context, userID int64) ([]domain.CartLine, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT c.id, c.added_at, s.id, s.category, s.title, s.description, s.price_caps,
			s.content_text, s.file_url, s.file_type, s.is_active, s.created_at
		FROM user_cart c JOIN shop_items s ON c.item_id = s.id
		WHERE c.user_id = $1 ORDER BY c.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("select cart: %w", err)
	}
	defer rows.Close()

	var out []domain.CartLine
	for rows.Next() {
		var l domain.CartLine
		if err := rows.Scan(&l.ID, &l.AddedAt, &l.Item.ID, &l.Item.Category, &l.Item.Title, &l.Item.Description,
			&l.Item.PriceCaps, &l.Item.ContentText, &l.Item.FileURL, &l.Item.FileType, &l.Item.IsActive, &l.Item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		l.ItemID = l.Item.ID
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *shopRepository) ClearCart(ctx context.Context, userID int64) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM user_cart WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func (r *shopRepository) InsertPurchase(ctx context.Context, p *domain.Purchase) error {
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO shop_purchases (user_id, item_id, price_paid, purchased_at) VALUES ($1, $2, $3, $4)
		RETURNING id`, p.UserID, p.ItemID, p.PricePaid, p.PurchasedAt).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("insert purchase: %w", err)
	}
	return nil
}

func (r *shopRepository) Purchases(ctx context.Context, userID int64) ([]domain.Purchase, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT p.id, p.user_id, p.item_id, s.title, s.category, p.price_paid, p.purchased_at
		FROM shop_purchases p JOIN shop_items s ON p.item_id = s.id
		WHERE p.user_id = $1 ORDER BY p.id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("select purchases: %w", err)
	}
	defer rows.Close()

	var out []domain.Purchase
	for rows.Next() {
		var p domain.Purchase
		if err := rows.Scan(&p.ID, &p.UserID, &p.ItemID, &p.Title, &p.Category, &p.PricePaid, &p.PurchasedAt); err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
