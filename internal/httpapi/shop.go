package httpapi

import (
	"net/http"
	"time"

	"github.com/Proton-105/craft-bot/internal/domain"
	apperrors "github.com/Proton-105/craft-bot/internal/errors"
)

type itemJSON struct {
	ID          int64  `json:"id"`
	Category    string `json:"category"`
	Title       string `json:"title"`
	Description string `json:"description"`
	PriceCaps   int64  `json:"price_caps"`
	FileType    string `json:"file_type,omitempty"`
}

func toItem(it domain.ShopItem) itemJSON {
	return itemJSON{
		ID:          it.ID,
		Category:    it.Category,
		Title:       it.Title,
		Description: it.Description,
		PriceCaps:   it.PriceCaps,
		FileType:    it.FileType,
	}
}

// shopItems lists the active catalog. Item content is only ever delivered after purchase.
func (a *API) shopItems(w http.ResponseWriter, r *http.Request) {
	catalog, err := a.deps.Shop.Catalog(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}

	grouped := make(map[string][]itemJSON, len(catalog))
	for category, items := range catalog {
		for _, it := range items {
			grouped[category] = append(grouped[category], toItem(it))
		}
	}
	a.ok(w, envelope{"items": grouped})
}

type cartLineJSON struct {
	itemJSON
	AddedAt time.Time `json:"added_at"`
}

func (a *API) cart(w http.ResponseWriter, r *http.Request) {
	tid, err := a.queryTelegramID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	cart, err := a.deps.Shop.Cart(r.Context(), tid)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	lines := make([]cartLineJSON, 0, len(cart.Lines))
	for _, l := range cart.Lines {
		lines = append(lines, cartLineJSON{itemJSON: toItem(l.Item), AddedAt: l.AddedAt})
	}
	a.ok(w, envelope{"items": lines, "total": cart.Total})
}

type cartRequest struct {
	TelegramID flexID `json:"telegram_id"`
	ItemID     flexID `json:"item_id"`
}

func (a *API) cartRequest(w http.ResponseWriter, r *http.Request) (int64, int64, error) {
	var req cartRequest
	if err := decode(w, r, &req); err != nil {
		return 0, 0, err
	}
	if req.ItemID <= 0 {
		return 0, 0, apperrors.NewValidationError("item_id required")
	}
	tid, err := telegramID(r.Context(), int64(req.TelegramID))
	if err != nil {
		return 0, 0, err
	}
	return tid, int64(req.ItemID), nil
}

func (a *API) cartAdd(w http.ResponseWriter, r *http.Request) {
	tid, itemID, err := a.cartRequest(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.deps.Shop.AddToCart(r.Context(), tid, itemID); err != nil {
		a.fail(w, r, err)
		return
	}
	a.ok(w, nil)
}

func (a *API) cartRemove(w http.ResponseWriter, r *http.Request) {
	tid, itemID, err := a.cartRequest(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.deps.Shop.RemoveFromCart(r.Context(), tid, itemID); err != nil {
		a.fail(w, r, err)
		return
	}
	a.ok(w, nil)
}

func (a *API) checkout(w http.ResponseWriter, r *http.Request) {
	tid, err := a.bodyTelegramID(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	res, err := a.deps.Shop.Checkout(r.Context(), tid)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.ok(w, envelope{"total_spent": res.TotalSpent, "new_balance": res.NewBalance})
}

type purchaseJSON struct {
	ID          int64     `json:"id"`
	ItemID      int64     `json:"item_id"`
	Title       string    `json:"title"`
	Category    string    `json:"category"`
	PricePaid   int64     `json:"price_paid"`
	PurchasedAt time.Time `json:"purchased_at"`
}

func (a *API) purchases(w http.ResponseWriter, r *http.Request) {
	tid, err := a.queryTelegramID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	list, err := a.deps.Shop.Purchases(r.Context(), tid)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	out := make([]purchaseJSON, 0, len(list))
	for _, p := range list {
		out = append(out, purchaseJSON{
			ID:          p.ID,
			ItemID:      p.ItemID,
			Title:       p.Title,
			Category:    p.Category,
			PricePaid:   p.PricePaid,
			PurchasedAt: p.PurchasedAt,
		})
	}
	a.ok(w, envelope{"purchases": out})
}
