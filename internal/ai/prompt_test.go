package ai

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/craft-bot/internal/domain"
)

func TestBuildMessages(t *testing.T) {
	msgs := BuildMessages(PromptInput{
		Knowledge: []domain.KnowledgeEntry{{Title: "Ставки", Content: "12-14%"}, {Title: "QR", Content: "от 5кк"}},
		History: []domain.Conversation{
			{Message: strings.Repeat("в", 400), Response: "ответ"},
		},
		Message:   "новый вопрос",
		TurnChars: 300,
	})

	require.Len(t, msgs, 4)
	assert.Equal(t, RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "[Ставки]\n12-14%\n---\n[QR]\nот 5кк")
	assert.Contains(t, msgs[0].Content, emptyFacts)
	assert.NotContains(t, msgs[0].Content, "ДОПОЛНИТЕЛЬНАЯ ЗАДАЧА")

	assert.Equal(t, RoleUser, msgs[1].Role)
	assert.Equal(t, 300, len([]rune(msgs[1].Content)))
	assert.Equal(t, RoleAssistant, msgs[2].Role)
	assert.Equal(t, Message{Role: RoleUser, Content: "новый вопрос"}, msgs[3])
}

func TestBuildMessages_Lead(t *testing.T) {
	msgs := BuildMessages(PromptInput{Facts: []string{"факт"}, Message: "m", Lead: true})

	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Content, emptyKnowledge)
	assert.Contains(t, msgs[0].Content, "ВЫУЧЕННЫЕ ФАКТЫ:\nфакт")
	assert.Contains(t, msgs[0].Content, "ДОПОЛНИТЕЛЬНАЯ ЗАДАЧА")
}

func TestKeywordClassifier(t *testing.T) {
	k := NewKeywordClassifier()

	t.Run("fact", func(t *testing.T) {
		assert.Nil(t, k.Fact(1, "у нас всё ок"), "too short")
		assert.Nil(t, k.Fact(1, "Расскажи пожалуйста про ставки на фермах"))

		f := k.Fact(7, "По опыту скажу, что залив лучше делать днём")
		require.NotNil(t, f)
		assert.Equal(t, "user_7", f.Source)
		assert.Equal(t, 0.6, f.Confidence)
	})

	t.Run("leads", func(t *testing.T) {
		tests := []struct {
			message string
			want    []string
		}{
			{"Привет", nil},
			{"Я новичок", []string{"experience"}},
			{"Работаю сам из Казахстана через P2P", []string{"experience", "methods", "team", "region"}},
			{"оборот 3 млн", []string{"volume"}},
		}
		for _, tt := range tests {
			var got []string
			for _, f := range k.Leads(tt.message) {
				got = append(got, f.Name)
				assert.Equal(t, tt.message, f.Value)
			}
			assert.Equal(t, tt.want, got, tt.message)
		}
	})
}
