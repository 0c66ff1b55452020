package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, userID, text string) error {
	args := m.Called(ctx, userID, text)
	return args.Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestWebhookHandler(t *testing.T) {
	tests := []struct {
		name           string
		form           url.Values
		setupMock      func(*MockDispatcher)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "сообщение принято",
			form: url.Values{"From": {"whatsapp:+5215512345678"}, "Body": {"  hola Alma "}},
			setupMock: func(m *MockDispatcher) {
				m.On("Dispatch", mock.Anything, "whatsapp:+5215512345678", "hola Alma").Return(nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   "OK",
		},
		{
			name:           "пустое сообщение",
			form:           url.Values{"From": {"whatsapp:+5215512345678"}, "Body": {"   "}},
			setupMock:      func(_ *MockDispatcher) {},
			expectedStatus: http.StatusOK,
			expectedBody:   "OK",
		},
		{
			name:           "нет отправителя",
			form:           url.Values{"Body": {"hola"}},
			setupMock:      func(_ *MockDispatcher) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"status":"Error","error":"field From is a required field"}`,
		},
		{
			name: "диспетчер перегружен",
			form: url.Values{"From": {"whatsapp:+5215512345678"}, "Body": {"hola"}},
			setupMock: func(m *MockDispatcher) {
				m.On("Dispatch", mock.Anything, "whatsapp:+5215512345678", "hola").Return(context.DeadlineExceeded)
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   `{"status":"Error","error":"service unavailable"}`,
		},
		{
			name: "диспетчер закрыт",
			form: url.Values{"From": {"whatsapp:+5215512345678"}, "Body": {"hola"}},
			setupMock: func(m *MockDispatcher) {
				m.On("Dispatch", mock.Anything, "whatsapp:+5215512345678", "hola").Return(errors.New("dispatcher is closed"))
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   `"service unavailable"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := new(MockDispatcher)
			tt.setupMock(d)
			h := New(newNoopLogger(), d)

			req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(tt.form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rr := httptest.NewRecorder()

			h.ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.expectedBody)
			d.AssertExpectations(t)
		})
	}
}
