package messenger

import "errors"

var (
	ErrNoRecipient = errors.New("recipient is empty")
	ErrRejected    = errors.New("provider rejected message")
	// ErrUnavailable провайдер временно недоступен, отправку можно повторить.
	ErrUnavailable = errors.New("provider unavailable")
)
