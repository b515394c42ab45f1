package b2

import (
	"fmt"
	"strconv"
	"time"

	"github.com/bitrise-io/go-b2/b2/model"
	"github.com/bitrise-io/go-utils/v2/env"
)

// Environment variables read by ConfigFromEnv.
const (
	AccountIDEnvKey         = "B2_ACCOUNT_ID"
	KeyIDEnvKey             = "B2_KEY_ID"
	ApplicationKeyEnvKey    = "B2_APPLICATION_KEY"
	APIURLEnvKey            = "B2_API_URL"
	APIVersionEnvKey        = "B2_API_VERSION"
	LargeFileLimitEnvKey    = "B2_LARGE_FILE_LIMIT"
	AuthCacheTTLEnvKey      = "B2_AUTH_CACHE_TTL"
	BucketCacheTTLEnvKey    = "B2_BUCKET_CACHE_TTL"
	RetryLimitEnvKey        = "B2_RETRY_LIMIT"
	RetryWaitEnvKey         = "B2_RETRY_WAIT"
	RetryMaxWaitEnvKey      = "B2_RETRY_MAX_WAIT"
	UploadConcurrencyEnvKey = "B2_UPLOAD_CONCURRENCY"
	CacheDirEnvKey          = "B2_CACHE_DIR"
)

// DefaultAPIURL ...
const DefaultAPIURL = "https://api.backblazeb2.com"

// Config ...
type Config struct {
	AccountID string `validate:"required"`
	// KeyID defaults to AccountID.
	KeyID          string
	ApplicationKey string `validate:"required"`
	APIURL         string `validate:"required,url"`
	APIVersion     int    `validate:"gte=1"`

	// LargeFileLimit is the size above which uploads always use the multipart protocol.
	LargeFileLimit int64         `validate:"gte=1"`
	AuthCacheTTL   time.Duration `validate:"gte=0"`
	BucketCacheTTL time.Duration `validate:"gte=0"`

	// RetryLimit, RetryWait and RetryMaxWait configure how requests rejected
	// with 503 Service Unavailable are repeated.
	RetryLimit   int           `validate:"gte=0"`
	RetryWait    time.Duration `validate:"gte=0"`
	RetryMaxWait time.Duration `validate:"gte=0"`

	// UploadConcurrency is the number of large file parts sent in parallel.
	UploadConcurrency int `validate:"gte=1"`

	// CacheDir persists the authorization and the bucket listing between
	// processes. Empty keeps them in memory.
	CacheDir string

	// DomainAliases rewrites download URL hosts, e.g.
	// {"f001.backblazeb2.com": "files.example.com"} for CNAME setups.
	DomainAliases map[string]string
}

// DefaultConfig returns a configuration with every optional field set to its default.
func DefaultConfig() Config {
	return Config{
		APIURL:            DefaultAPIURL,
		APIVersion:        1,
		LargeFileLimit:    3000000000,
		AuthCacheTTL:      60 * time.Second,
		BucketCacheTTL:    10 * time.Minute,
		RetryLimit:        10,
		RetryWait:         10 * time.Second,
		RetryMaxWait:      2 * time.Minute,
		UploadConcurrency: 1,
	}
}

// ConfigFromEnv reads the configuration from the environment, falling back to
// DefaultConfig for unset optional variables.
func ConfigFromEnv(envRepo env.Repository) (Config, error) {
	config := DefaultConfig()

	config.AccountID = envRepo.Get(AccountIDEnvKey)
	if config.AccountID == "" {
		return Config{}, fmt.Errorf("the secret '%s' is not defined", AccountIDEnvKey)
	}
	config.ApplicationKey = envRepo.Get(ApplicationKeyEnvKey)
	if config.ApplicationKey == "" {
		return Config{}, fmt.Errorf("the secret '%s' is not defined", ApplicationKeyEnvKey)
	}
	config.KeyID = envRepo.Get(KeyIDEnvKey)
	config.CacheDir = envRepo.Get(CacheDirEnvKey)
	if value := envRepo.Get(APIURLEnvKey); value != "" {
		config.APIURL = value
	}

	p := envParser{envRepo: envRepo}
	p.intVar(APIVersionEnvKey, &config.APIVersion)
	p.int64Var(LargeFileLimitEnvKey, &config.LargeFileLimit)
	p.durationVar(AuthCacheTTLEnvKey, &config.AuthCacheTTL)
	p.durationVar(BucketCacheTTLEnvKey, &config.BucketCacheTTL)
	p.intVar(RetryLimitEnvKey, &config.RetryLimit)
	p.durationVar(RetryWaitEnvKey, &config.RetryWait)
	p.durationVar(RetryMaxWaitEnvKey, &config.RetryMaxWait)
	p.intVar(UploadConcurrencyEnvKey, &config.UploadConcurrency)
	if p.err != nil {
		return Config{}, p.err
	}

	if err := config.validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c *Config) validate() error {
	if c.KeyID == "" {
		c.KeyID = c.AccountID
	}
	return model.Validate(c)
}

// envParser keeps the first parse error so a run of optional variables can
// be read without checking each one.
type envParser struct {
	envRepo env.Repository
	err     error
}

func (p *envParser) lookup(key string) (string, bool) {
	if p.err != nil {
		return "", false
	}
	value := p.envRepo.Get(key)
	return value, value != ""
}

func (p *envParser) intVar(key string, dst *int) {
	if value, ok := p.lookup(key); ok {
		v, err := strconv.Atoi(value)
		if err != nil {
			p.err = fmt.Errorf("parse %s: %w", key, err)
			return
		}
		*dst = v
	}
}

func (p *envParser) int64Var(key string, dst *int64) {
	if value, ok := p.lookup(key); ok {
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			p.err = fmt.Errorf("parse %s: %w", key, err)
			return
		}
		*dst = v
	}
}

func (p *envParser) durationVar(key string, dst *time.Duration) {
	if value, ok := p.lookup(key); ok {
		v, err := time.ParseDuration(value)
		if err != nil {
			p.err = fmt.Errorf("parse %s: %w", key, err)
			return
		}
		*dst = v
	}
}
