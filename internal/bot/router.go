package bot

import (
	"log/slog"
	"sync"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/craft-bot/internal/bot/handlers"
)

// Router dispatches text messages to command handlers, the unknown-command
// handler or the free-text handler.
type Router struct {
	mu          sync.RWMutex
	commands    map[string]handlers.Handler
	unknown     handlers.Handler
	text        handlers.Handler
	middlewares []handlers.Middleware
	log         *slog.Logger
}

// NewRouter builds a Router with empty registries.
func NewRouter(log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}

	return &Router{
		commands: make(map[string]handlers.Handler),
		log:      log,
	}
}

// RegisterCommand registers a handler for a bot command such as "/start".
func (r *Router) RegisterCommand(cmd string, h handlers.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[cmd] = h
}

// SetUnknownCommand sets the handler for commands without a registration.
func (r *Router) SetUnknownCommand(h handlers.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unknown = h
}

// SetText sets the handler for messages that are not commands.
func (r *Router) SetText(h handlers.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.text = h
}

// Use appends a middleware to the chain. The first registered runs outermost.
func (r *Router) Use(mw handlers.Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = append(r.middlewares, mw)
}

// Route directs the incoming update to the appropriate handler.
func (r *Router) Route(c telebot.Context) error {
	if c == nil {
		return nil
	}

	handler := r.resolve(c.Text())
	if handler == nil {
		r.log.Debug("no handler for update", slog.String("command", commandName(c)))
		return nil
	}
	return r.applyMiddlewares(handler)(c)
}

func (r *Router) resolve(text string) handlers.Handler {
	cmd, _ := handlers.SplitCommand(text)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if cmd == "" {
		return r.text
	}
	if h, ok := r.commands[cmd]; ok {
		return h
	}
	return r.unknown
}

// applyMiddlewares wraps the handler with all registered middlewares.
func (r *Router) applyMiddlewares(h handlers.Handler) handlers.Handler {
	r.mu.RLock()
	middlewares := make([]handlers.Middleware, len(r.middlewares))
	copy(middlewares, r.middlewares)
	r.mu.RUnlock()

	wrapped := h
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

// commandName is the metrics and log label of an update: the command or "text".
func commandName(c telebot.Context) string {
	if c == nil {
		return "unknown"
	}
	cmd, _ := handlers.SplitCommand(c.Text())
	if cmd == "" {
		return "text"
	}
	return cmd
}
