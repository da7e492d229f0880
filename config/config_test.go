package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GO_ENV", "test")
	t.Setenv("DATABASE_URL", ":memory:")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, int64(5000), cfg.ShippingFlatFee)
	assert.Equal(t, int64(99900), cfg.FreeShippingThreshold)
	assert.Equal(t, 10*time.Minute, cfg.OTPTTL)
	assert.Equal(t, 5, cfg.OTPMaxAttempts)
	assert.Equal(t, 15*time.Second, cfg.CarrierTimeout)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins)
	assert.True(t, cfg.IsTest())
	assert.Same(t, cfg, GetConfig())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GO_ENV", "test")
	t.Setenv("DATABASE_URL", ":memory:")
	t.Setenv("TAX_RATE_BPS", "1200")
	t.Setenv("CARRIER_TIMEOUT", "3s")
	t.Setenv("CORS_ORIGINS", "https://shop.example.com, https://admin.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(1200), cfg.TaxRateBps)
	assert.Equal(t, 3*time.Second, cfg.CarrierTimeout)
	assert.Equal(t, []string{"https://shop.example.com", "https://admin.example.com"}, cfg.CORSOrigins)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "missing database url",
			cfg:     Config{GoEnv: "test"},
			wantErr: "DATABASE_URL is required",
		},
		{
			name:    "short admin secret outside test",
			cfg:     Config{GoEnv: "production", DatabaseURL: "postgres://x", AdminJWTSecret: "short"},
			wantErr: "ADMIN_JWT_SECRET",
		},
		{
			name:    "negative shipping fee",
			cfg:     Config{GoEnv: "test", DatabaseURL: ":memory:", ShippingFlatFee: -1},
			wantErr: "must not be negative",
		},
		{
			name: "valid production config",
			cfg: Config{
				GoEnv:          "production",
				DatabaseURL:    "postgres://x",
				AdminJWTSecret: "0123456789abcdef0123456789abcdef",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
