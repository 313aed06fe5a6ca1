package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/40acres/htlc-bridge/money"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func testConfig() Config {
	return Config{
		MinFeedInterval: 0,
		MaxRetries:      3,
		InitialBackoff:  time.Millisecond,
		MaxBackoff:      4 * time.Millisecond,
	}
}

var testFallback = FallbackTable{
	"ETH":  decimal.NewFromInt(3000),
	"NEAR": decimal.NewFromInt(5),
	"BTC":  decimal.NewFromInt(60000),
}

func TestOracle_GetRate(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	tests := []struct {
		name       string
		setup      func(primary, secondary *MockFeed)
		wantRate   string
		wantSource string
		wantErr    error
	}{
		{
			name: "primary feed answers",
			setup: func(primary, secondary *MockFeed) {
				primary.EXPECT().FetchRate(gomock.Any(), "ETH", "NEAR").Return(decimal.NewFromInt(600), now, nil)
			},
			wantRate:   "600",
			wantSource: "primary",
		},
		{
			name: "primary fails, secondary answers",
			setup: func(primary, secondary *MockFeed) {
				primary.EXPECT().FetchRate(gomock.Any(), "ETH", "NEAR").Return(decimal.Zero, time.Time{}, errors.New("boom"))
				secondary.EXPECT().FetchRate(gomock.Any(), "ETH", "NEAR").Return(decimal.NewFromInt(590), now, nil)
			},
			wantRate:   "590",
			wantSource: "secondary",
		},
		{
			name: "throttling is retried",
			setup: func(primary, secondary *MockFeed) {
				gomock.InOrder(
					primary.EXPECT().FetchRate(gomock.Any(), "ETH", "NEAR").Return(decimal.Zero, time.Time{}, ErrThrottled),
					primary.EXPECT().FetchRate(gomock.Any(), "ETH", "NEAR").Return(decimal.Zero, time.Time{}, ErrThrottled),
					primary.EXPECT().FetchRate(gomock.Any(), "ETH", "NEAR").Return(decimal.NewFromInt(605), now, nil),
				)
			},
			wantRate:   "605",
			wantSource: "primary",
		},
		{
			name: "stale feed data is skipped",
			setup: func(primary, secondary *MockFeed) {
				primary.EXPECT().FetchRate(gomock.Any(), "ETH", "NEAR").Return(decimal.NewFromInt(1), now.Add(-time.Hour), nil)
				secondary.EXPECT().FetchRate(gomock.Any(), "ETH", "NEAR").Return(decimal.NewFromInt(598), now, nil)
			},
			wantRate:   "598",
			wantSource: "secondary",
		},
		{
			name: "all feeds fail, fallback is tagged",
			setup: func(primary, secondary *MockFeed) {
				primary.EXPECT().FetchRate(gomock.Any(), "ETH", "NEAR").Return(decimal.Zero, time.Time{}, ErrThrottled).Times(4)
				secondary.EXPECT().FetchRate(gomock.Any(), "ETH", "NEAR").Return(decimal.Zero, time.Time{}, ErrUnexpectedStatus)
			},
			wantRate:   "600",
			wantSource: FallbackSource,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			t.Cleanup(ctrl.Finish)

			primary := NewMockFeed(ctrl)
			primary.EXPECT().Name().Return("primary").AnyTimes()
			secondary := NewMockFeed(ctrl)
			secondary.EXPECT().Name().Return("secondary").AnyTimes()
			tt.setup(primary, secondary)

			o := New([]Feed{primary, secondary}, NewRateCache(16, time.Minute), testFallback, testConfig())
			got, err := o.GetRate(ctx, money.ETH, money.NEAR)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantRate, got.Rate.String())
			require.Equal(t, tt.wantSource, got.Source)
			require.Equal(t, "ETH/NEAR", got.Pair)
		})
	}
}

func TestOracle_CachesFeedRatesButNotFallback(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	feed := NewMockFeed(ctrl)
	feed.EXPECT().Name().Return("feed").AnyTimes()
	feed.EXPECT().FetchRate(gomock.Any(), "BTC", "ETH").Return(decimal.NewFromInt(20), time.Now(), nil).Times(1)
	feed.EXPECT().FetchRate(gomock.Any(), "NEAR", "BTC").Return(decimal.Zero, time.Time{}, errors.New("down")).Times(2)

	o := New([]Feed{feed}, NewRateCache(16, time.Minute), testFallback, testConfig())

	for range 3 {
		got, err := o.GetRate(ctx, money.BTC, money.ETH)
		require.NoError(t, err)
		require.Equal(t, "feed", got.Source)
	}

	for range 2 {
		got, err := o.GetRate(ctx, money.NEAR, money.BTC)
		require.NoError(t, err)
		require.True(t, got.IsFallback())
	}
}

func TestOracle_CacheExpires(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	feed := NewMockFeed(ctrl)
	feed.EXPECT().Name().Return("feed").AnyTimes()
	feed.EXPECT().FetchRate(gomock.Any(), "ETH", "BTC").DoAndReturn(func(context.Context, string, string) (decimal.Decimal, time.Time, error) {
		return decimal.RequireFromString("0.05"), time.Now(), nil
	}).Times(2)

	o := New([]Feed{feed}, NewRateCache(16, 50*time.Millisecond), nil, testConfig())

	_, err := o.GetRate(ctx, money.ETH, money.BTC)
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)
	_, err = o.GetRate(ctx, money.ETH, money.BTC)
	require.NoError(t, err)
}

func TestOracle_NoRate(t *testing.T) {
	o := New(nil, NewRateCache(16, time.Minute), FallbackTable{"ETH": decimal.NewFromInt(3000)}, testConfig())

	_, err := o.GetRate(context.Background(), money.ETH, money.NEAR)
	require.ErrorIs(t, err, ErrNoRate)

	same, err := o.GetRate(context.Background(), money.NEAR, money.NEAR)
	require.NoError(t, err)
	require.Equal(t, IdentitySource, same.Source)
	require.Equal(t, "1", same.Rate.String())
}

func TestOracle_RateLimiterSpacesRequests(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	feed := NewMockFeed(ctrl)
	feed.EXPECT().Name().Return("feed").AnyTimes()
	feed.EXPECT().FetchRate(gomock.Any(), gomock.Any(), gomock.Any()).Return(decimal.NewFromInt(2), time.Now(), nil).Times(3)

	config := testConfig()
	config.MinFeedInterval = 50 * time.Millisecond
	o := New([]Feed{feed}, NewRateCache(16, time.Minute), nil, config)

	start := time.Now()
	for _, pair := range [][2]money.Asset{{money.ETH, money.NEAR}, {money.NEAR, money.BTC}, {money.BTC, money.ETH}} {
		_, err := o.GetRate(ctx, pair[0], pair[1])
		require.NoError(t, err)
	}
	require.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestOracle_Convert(t *testing.T) {
	o := New(nil, NewRateCache(16, time.Minute), testFallback, testConfig())

	got, err := o.Convert(context.Background(), decimal.RequireFromString("0.5"), money.ETH, money.BTC)
	require.NoError(t, err)
	// 0.5 * 3000 / 60000 = 0.025
	require.Equal(t, "0.025", got.Amount.String())
	require.Equal(t, FallbackSource, got.Source)

	got, err = o.Convert(context.Background(), decimal.NewFromInt(1), money.NEAR, money.BTC)
	require.NoError(t, err)
	// 5 / 60000 = 0.0000833333... rounded down to sats
	require.Equal(t, "0.00008333", got.Amount.String())

	_, err = o.Convert(context.Background(), decimal.NewFromInt(-1), money.NEAR, money.BTC)
	require.ErrorIs(t, err, money.ErrNegativeAmount)
}

func TestCalculateFee(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		bps     int64
		asset   money.Asset
		fee     string
		net     string
		wantErr error
	}{
		{name: "default fee", amount: "1", bps: DefaultFeeBps, asset: money.ETH, fee: "0.003", net: "0.997"},
		{name: "zero fee", amount: "1", bps: 0, asset: money.ETH, fee: "0", net: "1"},
		{name: "rounded down to sats", amount: "0.00001", bps: 30, asset: money.BTC, fee: "0.00000003", net: "0.00000997"},
		{name: "dust fee rounds to zero", amount: "0.00000010", bps: 30, asset: money.BTC, fee: "0", net: "0.0000001"},
		{name: "max fee", amount: "10", bps: MaxFeeBps, asset: money.NEAR, fee: "1", net: "9"},
		{name: "fee above cap", amount: "10", bps: MaxFeeBps + 1, asset: money.NEAR, wantErr: ErrInvalidFee},
		{name: "negative amount", amount: "-1", bps: 30, asset: money.NEAR, wantErr: money.ErrNegativeAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fee, net, err := CalculateFee(decimal.RequireFromString(tt.amount), tt.bps, tt.asset)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.fee, fee.String())
			require.Equal(t, tt.net, net.String())
			require.True(t, fee.Add(net).Equal(decimal.RequireFromString(tt.amount)))
		})
	}
}

func TestOracle_ConvertRoundTrip(t *testing.T) {
	ctx := context.Background()
	o := New(nil, NewRateCache(16, time.Minute), testFallback, testConfig())

	assets := []money.Asset{money.ETH, money.NEAR, money.BTC}
	amounts := []string{"1", "0.123456789", "42.5", "0.0003"}
	for _, from := range assets {
		for _, to := range assets {
			for _, raw := range amounts {
				amount := from.Round(decimal.RequireFromString(raw))
				there, err := o.Convert(ctx, amount, from, to)
				require.NoError(t, err)
				back, err := o.Convert(ctx, there.Amount, to, from)
				require.NoError(t, err)

				// Both legs round down to their asset's precision.
				tolerance := decimal.New(1, -to.Decimals).Mul(back.Rate).
					Add(decimal.New(1, -from.Decimals)).
					Add(amount.Shift(-12))
				require.True(t, amount.Sub(back.Amount).Abs().LessThanOrEqual(tolerance),
					"%s %s -> %s %s -> %s %s", amount, from, there.Amount, to, back.Amount, from)
			}
		}
	}
}
