package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_WithValidConfig(t *testing.T) {
	setEnv(t, "GATEWAY_WEBHOOK_SECRET", "whsec_test")
	setEnv(t, "PORT", "9090")
	setEnv(t, "PLATFORM_FEE_BPS", "500")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, DefaultCurrency, cfg.Currency)
	assert.Equal(t, int64(500), cfg.PlatformFeeBps)
	assert.Equal(t, DefaultEscrowGraceDays, cfg.EscrowGraceDays)
}

func TestLoad_MissingWebhookSecret(t *testing.T) {
	setEnv(t, "GATEWAY_WEBHOOK_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "GATEWAY_WEBHOOK_SECRET is required")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name: "valid",
			config: Config{
				WebhookSecret:  "whsec_test",
				Currency:       "USD",
				PlatformFeeBps: 1000,
			},
		},
		{
			name: "bad currency",
			config: Config{
				WebhookSecret:  "whsec_test",
				Currency:       "DOLLARS",
				PlatformFeeBps: 1000,
			},
			wantErr: "CURRENCY",
		},
		{
			name: "fee over 100%",
			config: Config{
				WebhookSecret:  "whsec_test",
				Currency:       "USD",
				PlatformFeeBps: 10001,
			},
			wantErr: "PLATFORM_FEE_BPS",
		},
		{
			name: "negative grace days",
			config: Config{
				WebhookSecret:   "whsec_test",
				Currency:        "USD",
				PlatformFeeBps:  1000,
				EscrowGraceDays: -1,
			},
			wantErr: "ESCROW_GRACE_DAYS",
		},
		{
			name: "verify without gateway url",
			config: Config{
				WebhookSecret:  "whsec_test",
				Currency:       "USD",
				PlatformFeeBps: 1000,
				GatewayVerify:  true,
			},
			wantErr: "GATEWAY_URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_EnvHelpers(t *testing.T) {
	setEnv(t, "GATEWAY_WEBHOOK_SECRET", "whsec_test")
	setEnv(t, "GATEWAY_VERIFY", "true")
	setEnv(t, "GATEWAY_URL", "https://gateway.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.GatewayVerify)
	assert.Equal(t, "https://gateway.example.com", cfg.GatewayURL)
}
