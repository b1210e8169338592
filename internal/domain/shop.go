package domain

import "time"

// ShopItem is a catalog entry purchasable for caps.
type ShopItem struct {
	ID          int64
	Category    string
	Title       string
	Description string
	PriceCaps   int64
	ContentText string
	FileURL     string
	FileType    string
	IsActive    bool
	CreatedAt   time.Time
}

// CartLine is a staged item in a user's cart.
type CartLine struct {
	ID      int64
	ItemID  int64
	Item    ShopItem
	AddedAt time.Time
}

// Purchase is a completed purchase of one item.
type Purchase struct {
	ID          int64
	UserID      int64
	ItemID      int64
	Title       string
	Category    string
	PricePaid   int64
	PurchasedAt time.Time
}
