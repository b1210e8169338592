package ai

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Proton-105/craft-bot/internal/domain"
)

// Classifier mines chat messages for side signals. Implementations must be pure:
// the chat service decides when and where the results are stored.
type Classifier interface {
	// Fact returns a statement worth remembering, or nil.
	Fact(userID int64, message string) *domain.LearnedFact
	// Leads returns the qualifying fields the message answers.
	Leads(message string) []domain.LeadField
}

var experienceMarkers = []string{
	"я работаю", "у нас", "мы делаем", "по опыту", "у меня", "я знаю что", "на практике",
}

// leadBuckets is ordered so that Leads returns fields deterministically.
var leadBuckets = []struct {
	field   string
	markers []string
}{
	{"experience", []string{"опыт", "работаю", "лет", "месяц", "начинающ", "новичок"}},
	{"volume", []string{"объем", "оборот", "тысяч", "к$", "к руб", "млн"}},
	{"methods", []string{"p2p", "сбп", "карт", "крипт", "нал", "безнал", "qr"}},
	{"team", []string{"команд", "человек", "один", "сам", "партнер"}},
	{"region", []string{"россия", "москва", "спб", "украин", "казахстан", "снг"}},
}

// KeywordClassifier is the keyword heuristic used in production.
type KeywordClassifier struct {
	MinFactChars int
	FactChars    int
	LeadChars    int
	Confidence   float64
}

// NewKeywordClassifier returns the production heuristic.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{MinFactChars: 20, FactChars: 500, LeadChars: 300, Confidence: 0.6}
}

func (k *KeywordClassifier) Fact(userID int64, message string) *domain.LearnedFact {
	if utf8.RuneCountInString(message) <= k.MinFactChars {
		return nil
	}

	lower := strings.ToLower(message)
	for _, m := range experienceMarkers {
		if strings.Contains(lower, m) {
			return &domain.LearnedFact{
				Fact:       truncate(message, k.FactChars),
				Confidence: k.Confidence,
				Source:     fmt.Sprintf("user_%d", userID),
			}
		}
	}
	return nil
}

func (k *KeywordClassifier) Leads(message string) []domain.LeadField {
	lower := strings.ToLower(message)
	value := truncate(message, k.LeadChars)

	var out []domain.LeadField
	for _, b := range leadBuckets {
		for _, m := range b.markers {
			if strings.Contains(lower, m) {
				out = append(out, domain.LeadField{Name: b.field, Value: value})
				break
			}
		}
	}
	return out
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
