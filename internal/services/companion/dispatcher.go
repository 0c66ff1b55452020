package companion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/magabrotheeeer/companion-gate/internal/lib/sl"
	"github.com/magabrotheeeer/companion-gate/internal/messenger"
)

// ErrDispatcherClosed возвращается после Close.
var ErrDispatcherClosed = errors.New("dispatcher is closed")

// MessageHandler обработчик одного входящего сообщения.
type MessageHandler interface {
	HandleMessage(ctx context.Context, userID, text string) string
}

// Dispatcher обрабатывает входящие сообщения асинхронно, не больше limit
// одновременно, и доставляет ответы через Sender.
type Dispatcher struct {
	handler MessageHandler
	sender  messenger.Sender
	log     *slog.Logger

	sem    chan struct{}
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher создает новый экземпляр Dispatcher.
func NewDispatcher(handler MessageHandler, sender messenger.Sender, limit int, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		handler: handler,
		sender:  sender,
		log:     log,
		sem:     make(chan struct{}, max(limit, 1)),
	}
}

// Dispatch ставит сообщение в обработку. Блокируется, пока не освободится
// слот, или до отмены ctx. Обработка продолжается после завершения ctx, но
// сохраняет его значения (например, request id).
func (d *Dispatcher) Dispatch(ctx context.Context, userID, text string) error {
	const op = "companion.Dispatcher.Dispatch"

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return fmt.Errorf("%s: %w", op, ErrDispatcherClosed)
	}

	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}

	d.wg.Add(1)
	go func(ctx context.Context) {
		defer d.wg.Done()
		defer func() { <-d.sem }()

		answer := d.handler.HandleMessage(ctx, userID, text)
		msg := messenger.Message{To: userID, Text: answer, Kind: messenger.KindReply}
		if err := d.sender.Send(ctx, msg); err != nil {
			d.log.Warn("failed to deliver reply", sl.User(userID), sl.Err(err))
		}
	}(context.WithoutCancel(ctx))
	return nil
}

// Close перестает принимать сообщения и ждет завершения начатых.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}
