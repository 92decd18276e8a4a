package httputil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmaas/ivcrush/pkg/logger"
)

func testClient() *Client {
	return New(5*time.Second, logger.Nop())
}

func TestDoJSONClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		check     func(t *testing.T, err error)
	}{
		{
			name:   "server error is transient",
			status: http.StatusBadGateway,
			body:   "{}",
			check: func(t *testing.T, err error) {
				assert.True(t, IsTransient(err))
			},
		},
		{
			name:   "429 is rate limited",
			status: http.StatusTooManyRequests,
			body:   "{}",
			check: func(t *testing.T, err error) {
				assert.True(t, IsRateLimited(err))
				assert.False(t, IsTransient(err))
			},
		},
		{
			name:   "4xx is a status error",
			status: http.StatusForbidden,
			body:   `{"message":"forbidden"}`,
			check: func(t *testing.T, err error) {
				var se *StatusError
				require.ErrorAs(t, err, &se)
				assert.Equal(t, http.StatusForbidden, se.Status)
			},
		},
		{
			name:   "malformed body is a decode error",
			status: http.StatusOK,
			body:   "not json",
			check: func(t *testing.T, err error) {
				assert.True(t, IsDecode(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			var dest map[string]interface{}
			err := testClient().GetJSON(context.Background(), srv.URL, &dest)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestDoJSONSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("APCA-API-SECRET-KEY"))
		_, _ = w.Write([]byte(`{"id":"abc"}`))
	}))
	defer srv.Close()

	client := testClient().WithHeaders(map[string]string{"APCA-API-SECRET-KEY": "secret"})

	var dest struct {
		ID string `json:"id"`
	}
	require.NoError(t, client.GetJSON(context.Background(), srv.URL, &dest))
	assert.Equal(t, "abc", dest.ID)
}

func TestDoJSONConnectionRefusedIsTransient(t *testing.T) {
	var dest map[string]interface{}
	err := testClient().GetJSON(context.Background(), "http://127.0.0.1:1/none", &dest)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestDoJSONCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := testClient().GetJSON(ctx, "http://127.0.0.1:1/none", nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsTransient(err))
}
