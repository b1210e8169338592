package keyboard_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/craft-bot/internal/bot/keyboard"
	"github.com/Proton-105/craft-bot/internal/i18n"
	"github.com/Proton-105/craft-bot/internal/testutil"
)

func TestInlineKeyboardBuilder(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		markup, err := keyboard.NewInlineKeyboard().
			AddRow(
				keyboard.InlineButton{Text: "App", WebAppURL: "https://craft.example"},
				keyboard.InlineButton{Text: "Share", URL: "https://t.me/share/url?url=x"},
			).
			AddRow().
			AddRow(keyboard.InlineButton{Text: "Ok", Data: "ok"}).
			Build()
		require.NoError(t, err)

		require.Len(t, markup.InlineKeyboard, 2)
		require.Len(t, markup.InlineKeyboard[0], 2)
		assert.Equal(t, "https://craft.example", markup.InlineKeyboard[0][0].WebApp.URL)
		assert.Equal(t, "https://t.me/share/url?url=x", markup.InlineKeyboard[0][1].URL)
		assert.Equal(t, "ok", markup.InlineKeyboard[1][0].Data)
	})

	t.Run("callback data overflow", func(t *testing.T) {
		_, err := keyboard.NewInlineKeyboard().
			AddRow(keyboard.InlineButton{Text: "Too big", Data: strings.Repeat("x", keyboard.CallbackDataLimitBytes+1)}).
			Build()
		assert.Error(t, err)
	})

	t.Run("button without action", func(t *testing.T) {
		_, err := keyboard.NewInlineKeyboard().AddRow(keyboard.InlineButton{Text: "?"}).Build()
		assert.ErrorIs(t, err, keyboard.ErrEmptyButton)
	})
}

func TestOpenApp(t *testing.T) {
	kb := keyboard.NewBuilder("https://craft.example/app", i18n.Default(), testutil.Logger())
	markup := kb.OpenApp()
	require.NotNil(t, markup)
	assert.Equal(t, "🍺 Открыть CRAFT", markup.InlineKeyboard[0][0].Text)
	assert.Equal(t, "https://craft.example/app", markup.InlineKeyboard[0][0].WebApp.URL)

	assert.Nil(t, keyboard.NewBuilder("", nil, nil).OpenApp())
}
