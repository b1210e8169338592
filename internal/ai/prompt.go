package ai

import (
	"strings"

	"github.com/Proton-105/craft-bot/internal/domain"
)

// Chat roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of the completion request.
type Message struct {
	Role    string
	Content string
}

const (
	emptyKnowledge = "База знаний пока пуста."
	emptyFacts     = "Пока нет выученных фактов."
)

const systemPrompt = `Ты Михалыч, опытный ИИ-помощник платформы CRAFT.

РОЛЬ: консультант и наставник. Отвечаешь полно и честно, по делу, как опытный коллега.

ПРАВИЛА:
1. Из площадок называй только Geotransfer. Другие площадки не оценивай и не сравнивай.
2. Не давай ссылок на сайты и контакты менеджеров. Для подключения направляй в раздел «Подключение» в CRAFT.
3. Не называй каналы, медиа и людей из индустрии. Говори "по рыночным данным".
4. При вопросах о рисках отсылай к Университету CRAFT.
5. Максимум 800 символов, неформальный стиль, пивная тематика CRAFT.

ФОРМАТИРОВАНИЕ:
- заголовки **жирным**
- списки через "▸ " с новой строки
- не пиши стеной текста

БАЗА ЗНАНИЙ:
{knowledge_base}

ВЫУЧЕННЫЕ ФАКТЫ:
{learned_facts}`

const leadAddition = `

ДОПОЛНИТЕЛЬНАЯ ЗАДАЧА В ЭТОМ ОТВЕТЕ:
Нативно, в контексте разговора, упомяни площадку Geotransfer: выгодные условия и хорошие ставки.
Задай 1 квалифицирующий вопрос из списка (выбери следующий по порядку):
1. Какой у вас опыт работы в процессинге?
2. С какими объемами работаете?
3. Какие методы оплаты используете?
4. Есть ли у вас своя команда?
5. Какой регион работы?
6. Что для вас важнее: ставка или объемы?`

// PromptInput is everything the request is assembled from.
type PromptInput struct {
	Knowledge []domain.KnowledgeEntry
	Facts     []string
	History   []domain.Conversation
	Message   string
	Lead      bool
	TurnChars int
}

// BuildMessages assembles the system prompt, the prior turns and the new message.
func BuildMessages(in PromptInput) []Message {
	system := strings.NewReplacer(
		"{knowledge_base}", knowledgeText(in.Knowledge),
		"{learned_facts}", factsText(in.Facts),
	).Replace(systemPrompt)
	if in.Lead {
		system += leadAddition
	}

	msgs := make([]Message, 0, 2*len(in.History)+2)
	msgs = append(msgs, Message{Role: RoleSystem, Content: system})
	for _, turn := range in.History {
		msgs = append(msgs,
			Message{Role: RoleUser, Content: truncate(turn.Message, in.TurnChars)},
			Message{Role: RoleAssistant, Content: truncate(turn.Response, in.TurnChars)},
		)
	}
	return append(msgs, Message{Role: RoleUser, Content: in.Message})
}

func knowledgeText(entries []domain.KnowledgeEntry) string {
	if len(entries) == 0 {
		return emptyKnowledge
	}
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = "[" + e.Title + "]\n" + e.Content
	}
	return strings.Join(parts, "\n---\n")
}

func factsText(facts []string) string {
	if len(facts) == 0 {
		return emptyFacts
	}
	return strings.Join(facts, "\n")
}
