package main

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/asterscholar-auth/internal/services/auth"
)

type recorder struct {
	calls []string
	err   error
}

func (r *recorder) Deactivate(_ context.Context, email string) error {
	r.calls = append(r.calls, "deactivate "+email)
	return r.err
}

func (r *recorder) Activate(_ context.Context, email string) error {
	r.calls = append(r.calls, "activate "+email)
	return r.err
}

func TestRun(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantCalls []string
		wantErr   error
	}{
		{name: "deactivate", args: []string{"deactivate", "-email", "a@x.com"}, wantCalls: []string{"deactivate a@x.com"}},
		{name: "activate", args: []string{"activate", "-email=a@x.com"}, wantCalls: []string{"activate a@x.com"}},
		{name: "no args", args: nil, wantErr: errUsage},
		{name: "missing email", args: []string{"deactivate"}, wantErr: errUsage},
		{name: "unknown command", args: []string{"delete", "-email", "a@x.com"}, wantErr: errUsage},
		{name: "unknown flag", args: []string{"deactivate", "-force"}, wantErr: errUsage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			var out bytes.Buffer
			err := run(context.Background(), tt.args, rec, &out)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, rec.calls)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCalls, rec.calls)
			assert.Contains(t, out.String(), "a@x.com")
		})
	}
}

func TestRun_ServiceError(t *testing.T) {
	rec := &recorder{err: fmt.Errorf("auth.Deactivate: %w", auth.ErrUserNotFound)}
	err := run(context.Background(), []string{"deactivate", "-email", "ghost@x.com"}, rec, &bytes.Buffer{})
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}
