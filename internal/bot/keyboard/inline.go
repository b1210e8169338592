package keyboard

import (
	"errors"
	"fmt"

	telebot "gopkg.in/telebot.v3"
)

// CallbackDataLimitBytes is Telegram's limit for callback_data.
const CallbackDataLimitBytes = 64

// ErrEmptyButton is returned for a button with no action.
var ErrEmptyButton = errors.New("keyboard: button has no action")

// InlineButton describes one button. Exactly one of Data, URL or WebAppURL should be set.
type InlineButton struct {
	Text      string
	Data      string
	URL       string
	WebAppURL string
}

// InlineKeyboardBuilder accumulates rows before rendering telebot markup.
type InlineKeyboardBuilder struct {
	rows [][]InlineButton
}

// NewInlineKeyboard creates an empty builder.
func NewInlineKeyboard() *InlineKeyboardBuilder {
	return &InlineKeyboardBuilder{}
}

// AddRow appends a row; empty rows are skipped.
func (b *InlineKeyboardBuilder) AddRow(buttons ...InlineButton) *InlineKeyboardBuilder {
	if len(buttons) == 0 {
		return b
	}

	row := make([]InlineButton, len(buttons))
	copy(row, buttons)
	b.rows = append(b.rows, row)
	return b
}

// Build validates the buttons and renders inline markup.
func (b *InlineKeyboardBuilder) Build() (*telebot.ReplyMarkup, error) {
	keyboard := make([][]telebot.InlineButton, len(b.rows))
	for i, row := range b.rows {
		keyboard[i] = make([]telebot.InlineButton, len(row))
		for j, btn := range row {
			rendered, err := render(btn)
			if err != nil {
				return nil, fmt.Errorf("row %d button %d: %w", i, j, err)
			}
			keyboard[i][j] = rendered
		}
	}

	return &telebot.ReplyMarkup{InlineKeyboard: keyboard}, nil
}

func render(btn InlineButton) (telebot.InlineButton, error) {
	out := telebot.InlineButton{Text: btn.Text}
	switch {
	case btn.WebAppURL != "":
		out.WebApp = &telebot.WebApp{URL: btn.WebAppURL}
	case btn.URL != "":
		out.URL = btn.URL
	case btn.Data != "":
		if len(btn.Data) > CallbackDataLimitBytes {
			return out, fmt.Errorf("callback data is %d bytes, limit %d", len(btn.Data), CallbackDataLimitBytes)
		}
		out.Data = btn.Data
	default:
		return out, ErrEmptyButton
	}
	return out, nil
}
