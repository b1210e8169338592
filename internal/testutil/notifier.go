package testutil

import (
	"context"
	"sync"
)

// SentMessage is one outbound message captured by Notifier.
type SentMessage struct {
	ChatID  int64
	Kind    string
	Text    string
	FileID  string
	Name    string
	Content []byte
}

// Notifier records outbound bot messages. Err, when set, is returned by every call.
type Notifier struct {
	mu   sync.Mutex
	Sent []SentMessage
	Err  error
}

func (n *Notifier) record(m SentMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Sent = append(n.Sent, m)
	return n.Err
}

func (n *Notifier) SendMessage(_ context.Context, chatID int64, text string, _ ...any) error {
	return n.record(SentMessage{ChatID: chatID, Kind: "message", Text: text})
}

func (n *Notifier) SendVideo(_ context.Context, chatID int64, fileID, caption string) error {
	return n.record(SentMessage{ChatID: chatID, Kind: "video", FileID: fileID, Text: caption})
}

func (n *Notifier) SendDocument(_ context.Context, chatID int64, fileName string, content []byte, caption string) error {
	return n.record(SentMessage{ChatID: chatID, Kind: "document", Name: fileName, Content: content, Text: caption})
}

// To returns the messages sent to chatID.
func (n *Notifier) To(chatID int64) []SentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()

	var out []SentMessage
	for _, m := range n.Sent {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}
