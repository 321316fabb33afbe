package mail

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/asterscholar-auth/internal/lib/smtp"
	"github.com/magabrotheeeer/asterscholar-auth/internal/models"
	"github.com/magabrotheeeer/asterscholar-auth/internal/rabbitmq"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, routingKey string, message any) error {
	args := m.Called(ctx, routingKey, message)
	return args.Error(0)
}

type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Connect() (smtp.Client, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(smtp.Client), args.Error(1)
}

func (m *MockTransport) GetSMTPUser() string {
	args := m.Called()
	return args.String(0)
}

type MockSMTPClient struct {
	mock.Mock
}

func (m *MockSMTPClient) Mail(from string) error { return m.Called(from).Error(0) }
func (m *MockSMTPClient) Rcpt(to string) error   { return m.Called(to).Error(0) }
func (m *MockSMTPClient) Quit() error            { return m.Called().Error(0) }
func (m *MockSMTPClient) Close() error           { return m.Called().Error(0) }

func (m *MockSMTPClient) Data() (io.WriteCloser, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.WriteCloser), args.Error(1)
}

// bufferWriter собирает тело письма
type bufferWriter struct {
	strings.Builder
	closed bool
}

func (w *bufferWriter) Close() error {
	w.closed = true
	return nil
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestNotifier_PublishesByKind(t *testing.T) {
	pub := new(MockPublisher)
	n := NewNotifier(pub)
	ctx := context.Background()

	pub.On("Publish", ctx, "verify", models.MailMessage{Kind: models.MailVerify, Email: "a@example.com", Token: "t1"}).
		Return(nil).Once()
	pub.On("Publish", ctx, "reset", models.MailMessage{Kind: models.MailReset, Email: "a@example.com", Token: "t2"}).
		Return(errors.New("broker down")).Once()

	require.NoError(t, n.SendVerification(ctx, "a@example.com", "t1"))

	err := n.SendPasswordReset(ctx, "a@example.com", "t2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mail.SendPasswordReset")

	pub.AssertExpectations(t)
}

func TestSender_Handle(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setupMocks func(*MockTransport, *MockSMTPClient, *bufferWriter)
		wantErr    bool
		wantDrop   bool
		wantLink   string
	}{
		{
			name: "verification email",
			body: `{"kind":"verify","email":"a@example.com","token":"tok+1"}`,
			setupMocks: func(tr *MockTransport, c *MockSMTPClient, w *bufferWriter) {
				tr.On("GetSMTPUser").Return("noreply@example.com")
				tr.On("Connect").Return(c, nil).Once()
				c.On("Mail", "noreply@example.com").Return(nil).Once()
				c.On("Rcpt", "a@example.com").Return(nil).Once()
				c.On("Data").Return(w, nil).Once()
				c.On("Quit").Return(nil).Once()
				c.On("Close").Return(nil).Once()
			},
			wantLink: "https://app.example.com/verify?token=tok%2B1",
		},
		{
			name: "reset email",
			body: `{"kind":"reset","email":"b@example.com","token":"abc"}`,
			setupMocks: func(tr *MockTransport, c *MockSMTPClient, w *bufferWriter) {
				tr.On("GetSMTPUser").Return("noreply@example.com")
				tr.On("Connect").Return(c, nil).Once()
				c.On("Mail", "noreply@example.com").Return(nil).Once()
				c.On("Rcpt", "b@example.com").Return(nil).Once()
				c.On("Data").Return(w, nil).Once()
				c.On("Quit").Return(nil).Once()
				c.On("Close").Return(nil).Once()
			},
			wantLink: "https://app.example.com/reset-password?token=abc",
		},
		{
			name:       "invalid JSON is dropped",
			body:       `invalid json`,
			setupMocks: func(*MockTransport, *MockSMTPClient, *bufferWriter) {},
			wantErr:    true,
			wantDrop:   true,
		},
		{
			name:       "unknown kind is dropped",
			body:       `{"kind":"promo","email":"a@example.com","token":"x"}`,
			setupMocks: func(*MockTransport, *MockSMTPClient, *bufferWriter) {},
			wantErr:    true,
			wantDrop:   true,
		},
		{
			name: "SMTP connection error is retried",
			body: `{"kind":"verify","email":"a@example.com","token":"x"}`,
			setupMocks: func(tr *MockTransport, _ *MockSMTPClient, _ *bufferWriter) {
				tr.On("GetSMTPUser").Return("noreply@example.com")
				tr.On("Connect").Return(nil, errors.New("connection error")).Once()
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := new(MockTransport)
			client := new(MockSMTPClient)
			w := &bufferWriter{}
			tt.setupMocks(tr, client, w)

			s := NewSender(newNoopLogger(), tr, "https://app.example.com/")
			err := s.Handle([]byte(tt.body))

			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantDrop, errors.Is(err, rabbitmq.ErrDropMessage))
			} else {
				require.NoError(t, err)
				assert.True(t, w.closed)
				assert.Contains(t, w.String(), tt.wantLink)
				assert.Contains(t, w.String(), "From: noreply@example.com")
			}
			tr.AssertExpectations(t)
			client.AssertExpectations(t)
		})
	}
}
