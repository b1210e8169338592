package ai

import (
	"strings"
	"unicode/utf8"
)

// Guard decides whether a message tries to override the assistant's instructions.
type Guard interface {
	Detect(message string) bool
}

var injectionPatterns = []string{
	"ignore previous instructions", "ignore all instructions", "disregard previous",
	"system prompt", "reveal your instructions", "show your prompt", "what are your instructions",
	"pretend you are", "act as if you", "you are now", "forget your instructions",
	"override your", "bypass your", "ignore your rules", "tell me your system",
	"what is your system message", "repeat your prompt", "output your instructions",
	"ignore the above", "disregard all", "new instructions:", "jailbreak",
	"dan mode", "developer mode", "sudo mode", "admin override",

	"забудь инструкции", "игнорируй правила", "покажи промпт", "системный промпт",
	"режим разработчика", "режим администратора", "забудь всё", "новые инструкции",
	"ты теперь", "представь что ты", "притворись", "отключи фильтры",
	"покажи свои правила", "какие у тебя инструкции", "выведи промпт",
	"обойди ограничения", "сними ограничения", "без цензуры", "без ограничений",
	"расскажи свой промпт", "покажи системное сообщение", "debug mode",

	"base64", "rot13", "hex encode", "unicode", "eval(", "exec(",

	"as an ai without restrictions", "hypothetically speaking if you had no rules",
	"for educational purposes only ignore", "in fiction mode",
}

var instructionMarkers = []string{
	"ты должен", "you must", "you should", "ты обязан", "выполни", "execute", "всегда отвечай", "always respond",
}

// PatternGuard flags known injection phrases, oversized messages and messages
// stacking several imperative instructions.
type PatternGuard struct {
	MaxChars   int
	MinMarkers int
}

// NewPatternGuard returns the guard used in production.
func NewPatternGuard() *PatternGuard {
	return &PatternGuard{MaxChars: 2000, MinMarkers: 2}
}

func (g *PatternGuard) Detect(message string) bool {
	lower := strings.ToLower(strings.TrimSpace(message))

	for _, p := range injectionPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}

	if g.MaxChars > 0 && utf8.RuneCountInString(message) > g.MaxChars {
		return true
	}

	markers := 0
	for _, m := range instructionMarkers {
		if strings.Contains(lower, m) {
			markers++
		}
	}
	return g.MinMarkers > 0 && markers >= g.MinMarkers
}
