package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHTTPFeed_FetchRate(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantRate string
		wantErr  error
	}{
		{
			name:     "ok",
			status:   http.StatusOK,
			body:     `{"pair":"ETH/NEAR","rate":"612.5","timestamp":1700000000}`,
			wantRate: "612.5",
		},
		{
			name:     "numeric rate",
			status:   http.StatusOK,
			body:     `{"pair":"ETH/NEAR","rate":612.25,"timestamp":1700000000}`,
			wantRate: "612.25",
		},
		{
			name:    "throttled",
			status:  http.StatusTooManyRequests,
			body:    `{}`,
			wantErr: ErrThrottled,
		},
		{
			name:    "server error",
			status:  http.StatusInternalServerError,
			body:    `oops`,
			wantErr: ErrUnexpectedStatus,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/rate", r.URL.Path)
				require.Equal(t, "ETH", r.URL.Query().Get("from"))
				require.Equal(t, "NEAR", r.URL.Query().Get("to"))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			t.Cleanup(server.Close)

			feed := NewHTTPFeed("relay-feed", server.URL+"/")
			rate, ts, err := feed.FetchRate(context.Background(), "ETH", "NEAR")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantRate, rate.String())
			require.Equal(t, time.Unix(1700000000, 0), ts)
		})
	}
}

func TestCoinGeckoFeed_FetchRate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/simple/price", r.URL.Path)
		require.Equal(t, "ethereum,near", r.URL.Query().Get("ids"))
		require.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		require.Equal(t, "pro-key", r.Header.Get("x-cg-pro-api-key"))
		_, _ = w.Write([]byte(`{
			"ethereum": {"usd": 3000, "last_updated_at": 1700000100},
			"near": {"usd": 4.8, "last_updated_at": 1700000000}
		}`))
	}))
	t.Cleanup(server.Close)

	feed := NewCoinGeckoFeed(server.URL, WithAPIKey("pro-key"))
	require.Equal(t, "coingecko", feed.Name())

	rate, ts, err := feed.FetchRate(context.Background(), "ETH", "NEAR")
	require.NoError(t, err)
	require.Equal(t, "625", rate.String())
	require.Equal(t, time.Unix(1700000000, 0), ts)

	_, _, err = feed.FetchRate(context.Background(), "DOGE", "NEAR")
	require.ErrorIs(t, err, ErrNoRate)
}
