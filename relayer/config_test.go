package relayer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "resolvers mode", mutate: func(c *Config) { c.FillMode = FillModeResolvers }},
		{name: "unknown fill mode", mutate: func(c *Config) { c.FillMode = "auction" }, wantErr: true},
		{name: "negative fee", mutate: func(c *Config) { c.FeeBps = -1 }, wantErr: true},
		{name: "fee above cap", mutate: func(c *Config) { c.FeeBps = 1001 }, wantErr: true},
		{name: "max below min timelock", mutate: func(c *Config) { c.MaxTimelock = c.MinTimelock - time.Second }, wantErr: true},
		{name: "default outside bounds", mutate: func(c *Config) { c.DefaultTimelock = 72 * time.Hour }, wantErr: true},
		{name: "margin eats the destination leg", mutate: func(c *Config) { c.TimelockSafetyMargin = 2 * time.Hour }, wantErr: true},
		{name: "unordered backoff", mutate: func(c *Config) { c.MaxBackoff = c.InitialBackoff / 2 }, wantErr: true},
		{name: "no workers", mutate: func(c *Config) { c.Workers = 0 }, wantErr: true},
		{name: "no refund attempts", mutate: func(c *Config) { c.MaxRefundAttempts = 0 }, wantErr: true},
		{name: "auction floor above start", mutate: func(c *Config) { c.AuctionFloorBps = 100 }, wantErr: true},
		{name: "zero auction duration", mutate: func(c *Config) { c.AuctionDuration = 0 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewConfig()
			tt.mutate(config)

			err := config.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidConfig)

				return
			}
			require.NoError(t, err)
		})
	}
}

func TestDestinationTimelock(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	now := h.clock.Now()

	tests := []struct {
		name    string
		source  time.Time
		want    time.Time
		wantErr bool
	}{
		{name: "margin before the source deadline", source: now.Add(2 * time.Hour), want: now.Add(90 * time.Minute)},
		{name: "capped at the max timelock", source: now.Add(72 * time.Hour), want: now.Add(48 * time.Hour)},
		{name: "exactly the min timelock", source: now.Add(40 * time.Minute), want: now.Add(10 * time.Minute)},
		{name: "too short", source: now.Add(39 * time.Minute), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := h.relayer.destinationTimelock(tt.source)
			if tt.wantErr {
				require.True(t, IsValidationError(err))

				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
