package b2

import (
	"testing"
	"time"

	"github.com/bitrise-io/go-b2/b2/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapEnv map[string]string

func (e mapEnv) List() []string {
	var envs []string
	for key, value := range e {
		envs = append(envs, key+"="+value)
	}
	return envs
}

func (e mapEnv) Unset(key string) error {
	delete(e, key)
	return nil
}

func (e mapEnv) Get(key string) string {
	return e[key]
}

func (e mapEnv) Set(key, value string) error {
	e[key] = value
	return nil
}

func TestConfigFromEnv(t *testing.T) {
	defaults := DefaultConfig()
	withDefaults := func(fn func(*Config)) Config {
		config := defaults
		config.AccountID = "acc"
		config.KeyID = "acc"
		config.ApplicationKey = "secret"
		fn(&config)
		return config
	}

	tests := []struct {
		name    string
		env     mapEnv
		want    Config
		wantErr string
	}{
		{
			name:    "missing account id",
			env:     mapEnv{ApplicationKeyEnvKey: "secret"},
			wantErr: "the secret 'B2_ACCOUNT_ID' is not defined",
		},
		{
			name:    "missing application key",
			env:     mapEnv{AccountIDEnvKey: "acc"},
			wantErr: "the secret 'B2_APPLICATION_KEY' is not defined",
		},
		{
			name: "defaults",
			env:  mapEnv{AccountIDEnvKey: "acc", ApplicationKeyEnvKey: "secret"},
			want: withDefaults(func(*Config) {}),
		},
		{
			name: "overrides",
			env: mapEnv{
				AccountIDEnvKey:         "acc",
				KeyIDEnvKey:             "key-1",
				ApplicationKeyEnvKey:    "secret",
				APIURLEnvKey:            "https://api002.backblazeb2.com",
				APIVersionEnvKey:        "2",
				LargeFileLimitEnvKey:    "5000000",
				AuthCacheTTLEnvKey:      "30s",
				BucketCacheTTLEnvKey:    "1h",
				RetryLimitEnvKey:        "3",
				RetryWaitEnvKey:         "500ms",
				RetryMaxWaitEnvKey:      "5s",
				UploadConcurrencyEnvKey: "4",
				CacheDirEnvKey:          "/tmp/b2",
			},
			want: withDefaults(func(c *Config) {
				c.KeyID = "key-1"
				c.APIURL = "https://api002.backblazeb2.com"
				c.APIVersion = 2
				c.LargeFileLimit = 5000000
				c.AuthCacheTTL = 30 * time.Second
				c.BucketCacheTTL = time.Hour
				c.RetryLimit = 3
				c.RetryWait = 500 * time.Millisecond
				c.RetryMaxWait = 5 * time.Second
				c.UploadConcurrency = 4
				c.CacheDir = "/tmp/b2"
			}),
		},
		{
			name:    "malformed duration",
			env:     mapEnv{AccountIDEnvKey: "acc", ApplicationKeyEnvKey: "secret", RetryWaitEnvKey: "soon"},
			wantErr: "parse B2_RETRY_WAIT",
		},
		{
			name:    "malformed integer",
			env:     mapEnv{AccountIDEnvKey: "acc", ApplicationKeyEnvKey: "secret", RetryLimitEnvKey: "many"},
			wantErr: "parse B2_RETRY_LIMIT",
		},
		{
			name:    "out of range",
			env:     mapEnv{AccountIDEnvKey: "acc", ApplicationKeyEnvKey: "secret", UploadConcurrencyEnvKey: "0"},
			wantErr: "validation failed: UploadConcurrency must be at least 1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := ConfigFromEnv(tt.env)

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, config)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	config := DefaultConfig()
	config.AccountID = "acc"
	config.ApplicationKey = "secret"
	config.APIURL = "not a url"

	err := config.validate()

	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
	assert.Equal(t, "acc", config.KeyID)
}
