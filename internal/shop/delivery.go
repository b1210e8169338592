package shop

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Proton-105/craft-bot/internal/domain"
)

// documentTypes are sent as a file built from the item's text content.
var documentTypes = map[string]bool{"txt": true, "csv": true, "xlsx": true}

// deliver sends a purchased item to the buyer. Best effort: failures are logged only.
func (s *Service) deliver(ctx context.Context, chatID int64, it domain.ShopItem) {
	if s.notifier == nil {
		return
	}

	fileType := strings.ToLower(strings.TrimSpace(it.FileType))

	var err error
	switch {
	case documentTypes[fileType] && it.ContentText != "":
		err = s.notifier.SendDocument(ctx, chatID, fileName(it.Title, fileType), []byte(it.ContentText), s.tr.T("shop.thanks", it.Title))
	case fileType == "pdf" && it.FileURL != "":
		err = s.notifier.SendMessage(ctx, chatID, s.tr.T("shop.pdf", it.Title, it.FileURL))
	case it.ContentText != "":
		err = s.notifier.SendMessage(ctx, chatID, s.tr.T("shop.content", it.Title, it.ContentText))
	default:
		err = s.notifier.SendMessage(ctx, chatID, s.tr.T("shop.pending", it.Title))
	}
	if err != nil {
		s.log.Warn("purchase delivery failed",
			slog.Int64("chat_id", chatID),
			slog.Int64("item_id", it.ID),
			slog.Any("error", err),
		)
	}
}

func fileName(title, ext string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, strings.TrimSpace(title))
	if name == "" {
		name = "item"
	}
	return name + "." + ext
}
