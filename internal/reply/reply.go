// Package reply генерирует ответы компаньона через OpenAI-совместимый API.
package reply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/magabrotheeeer/companion-gate/internal/lib/sl"
)

// Тексты на случай сбоя генератора.
const (
	FallbackText      = "Entiendo que quieres conectar. Estoy aquí para escucharte. ¿Puedes contarme más sobre cómo te sientes? 🌱"
	FallbackErrorText = "Veo que estás buscando apoyo. ¿Podrías contarme más sobre lo que necesitas en este momento? 💫"
)

// historyTurns сколько последних ходов попадает в запрос.
const historyTurns = 3

var errEmptyReply = errors.New("empty completion")

// Config параметры клиента.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

type completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client генератор ответов. Никогда не возвращает ошибку: при сбое отдается
// фиксированный текст.
type Client struct {
	api      completer
	cfg      Config
	log      *slog.Logger
	onFailed func()
}

// New создает новый экземпляр Client.
func New(cfg Config, log *slog.Logger, onFailed func()) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &Client{
		api:      openai.NewClientWithConfig(apiCfg),
		cfg:      cfg,
		log:      log,
		onFailed: onFailed,
	}
}

// Generate возвращает ответ на сообщение пользователя с учетом истории и фазы.
func (c *Client) Generate(ctx context.Context, req Request) string {
	const op = "reply.Client.Generate"

	text, err := c.complete(ctx, req)
	if err == nil {
		return text
	}

	c.log.Warn("reply generation failed, using fallback", sl.Op(op), sl.Err(err))
	if c.onFailed != nil {
		c.onFailed()
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) || errors.Is(err, errEmptyReply) {
		return FallbackText
	}
	return FallbackErrorText
}

func (c *Client) complete(ctx context.Context, req Request) (string, error) {
	const op = "reply.Client.complete"

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    buildMessages(req),
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: %w", op, errEmptyReply)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%s: %w", op, errEmptyReply)
	}
	return text, nil
}

func buildMessages(req Request) []openai.ChatCompletionMessage {
	history := req.History
	if len(history) > historyTurns {
		history = history[len(history)-historyTurns:]
	}

	msgs := make([]openai.ChatCompletionMessage, 0, 2+2*len(history))
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(req)})
	for _, turn := range history {
		msgs = append(msgs,
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: turn.Inbound},
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: turn.Outbound},
		)
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.UserMessage})
	return msgs
}
