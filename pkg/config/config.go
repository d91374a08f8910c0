package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names for Farbook server configuration
const (
	EnvFarbookPort             = "FARBOOK_PORT"
	EnvFarbookAppName          = "FARBOOK_APP_NAME"
	EnvFarbookSignerRequestURL = "FARBOOK_SIGNER_REQUEST_URL"
	EnvFarbookWarpcastAPIURL   = "FARBOOK_WARPCAST_API_URL"
	EnvFarbookHubAddress       = "FARBOOK_HUB_ADDRESS"
	EnvFarbookHubInsecure      = "FARBOOK_HUB_INSECURE"
	EnvFarbookPollInterval     = "FARBOOK_POLL_INTERVAL"
	EnvFarbookPollBackoff      = "FARBOOK_POLL_BACKOFF_MULTIPLIER"
	EnvFarbookPollMaxInterval  = "FARBOOK_POLL_MAX_INTERVAL"
	EnvFarbookPollMaxAttempts  = "FARBOOK_POLL_MAX_ATTEMPTS"
	EnvFarbookHTTPTimeout      = "FARBOOK_HTTP_TIMEOUT"
	EnvFarbookPersistenceType  = "FARBOOK_PERSISTENCE_TYPE"
	EnvFarbookBadgerPath       = "FARBOOK_BADGER_PATH"
	EnvFarbookRedisAddress     = "FARBOOK_REDIS_ADDRESS"
	EnvFarbookRedisPassword    = "FARBOOK_REDIS_PASSWORD"
	EnvFarbookRedisDB          = "FARBOOK_REDIS_DB"
	EnvFarbookRedisKeyPrefix   = "FARBOOK_REDIS_KEY_PREFIX"
	EnvFarbookConnectRateLimit = "FARBOOK_CONNECT_RATE_LIMIT"
	EnvFarbookCORSOrigins      = "FARBOOK_CORS_ORIGINS"
	EnvFarbookVerbose          = "FARBOOK_VERBOSE"
)

// Defaults mirror the public Warpcast + hub endpoints the app was built against.
// The signer request endpoint is app specific and has no default.
const (
	DefaultAppName          = "Farbook"
	DefaultPort             = 3000
	DefaultWarpcastAPIURL   = "https://api.warpcast.com"
	DefaultHubAddress       = "galaxy.ditti.xyz:2285"
	DefaultPollInterval     = 2 * time.Second
	DefaultHTTPTimeout      = 10 * time.Second
	DefaultBadgerPath       = "./data/farbook"
	DefaultConnectRateLimit = 1.0 // connect attempts per second
)

// PersistenceType selects the attempt store backend
type PersistenceType string

func (p PersistenceType) String() string {
	return string(p)
}

const (
	PersistenceTypeMemory PersistenceType = "memory"
	PersistenceTypeBadger PersistenceType = "badger"
	PersistenceTypeRedis  PersistenceType = "redis"
)

// GetSupportedPersistenceTypes returns all supported attempt store backends
func GetSupportedPersistenceTypes() []PersistenceType {
	return []PersistenceType{
		PersistenceTypeMemory,
		PersistenceTypeBadger,
		PersistenceTypeRedis,
	}
}

// GetSupportedPersistenceTypesString returns supported backends for CLI help
func GetSupportedPersistenceTypesString() string {
	types := GetSupportedPersistenceTypes()
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, t.String())
	}
	return strings.Join(names, ", ")
}

// PollConfig controls the approval polling loop
type PollConfig struct {
	Interval          time.Duration `json:"interval"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
	MaxInterval       time.Duration `json:"max_interval"`
	MaxAttempts       int           `json:"max_attempts"` // 0 polls until approval or cancellation
}

// RedisConfig mirrors the redis backend settings
type RedisConfig struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	KeyPrefix string `json:"key_prefix"`
}

// ServerConfig represents the complete configuration for the Farbook server
type ServerConfig struct {
	Port    int    `json:"port"`
	AppName string `json:"app_name"`

	// Remote collaborators
	SignerRequestURL string `json:"signer_request_url"`
	WarpcastAPIURL   string `json:"warpcast_api_url"`
	HubAddress       string `json:"hub_address"` // host:port of the hub gRPC endpoint
	HubInsecure      bool   `json:"hub_insecure"`

	Poll        PollConfig    `json:"poll"`
	HTTPTimeout time.Duration `json:"http_timeout"`

	// Attempt store
	PersistenceType PersistenceType `json:"persistence_type"`
	BadgerPath      string          `json:"badger_path"`
	Redis           RedisConfig     `json:"redis"`

	// Web surface
	ConnectRateLimit float64  `json:"connect_rate_limit"`
	CORSOrigins      []string `json:"cors_origins"`

	Debug   bool `json:"debug"`
	Verbose bool `json:"verbose"`
}

// Validate validates the server configuration, reporting every problem at once
func (c *ServerConfig) Validate() error {
	var allErrors field.ErrorList

	if c.Port < 1 || c.Port > 65535 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("port"), c.Port, "port must be between 1-65535"))
	}
	if strings.TrimSpace(c.AppName) == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("appName"), "appName is required"))
	}
	if c.SignerRequestURL == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("signerRequestUrl"),
			fmt.Sprintf("signerRequestUrl is required: set %s to the app's signer request endpoint", EnvFarbookSignerRequestURL)))
	} else if err := validateURL(c.SignerRequestURL); err != nil {
		allErrors = append(allErrors, field.Invalid(field.NewPath("signerRequestUrl"), c.SignerRequestURL, err.Error()))
	}
	if err := validateURL(c.WarpcastAPIURL); err != nil {
		allErrors = append(allErrors, field.Invalid(field.NewPath("warpcastApiUrl"), c.WarpcastAPIURL, err.Error()))
	}
	if c.HubAddress == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("hubAddress"), "hubAddress is required"))
	} else if !strings.Contains(c.HubAddress, ":") {
		allErrors = append(allErrors, field.Invalid(field.NewPath("hubAddress"), c.HubAddress, "hubAddress must be host:port"))
	}

	allErrors = append(allErrors, c.Poll.validate(field.NewPath("poll"))...)

	if c.HTTPTimeout < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("httpTimeout"), c.HTTPTimeout.String(), "httpTimeout cannot be negative"))
	}

	switch c.PersistenceType {
	case PersistenceTypeMemory:
	case PersistenceTypeBadger:
		if c.BadgerPath == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("badgerPath"), "badgerPath is required for badger persistence"))
		}
	case PersistenceTypeRedis:
		if c.Redis.Address == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("redis", "address"), "redis address is required for redis persistence"))
		}
		if c.Redis.DB < 0 || c.Redis.DB > 15 {
			allErrors = append(allErrors, field.Invalid(field.NewPath("redis", "db"), c.Redis.DB, "redis db must be between 0-15"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(field.NewPath("persistenceType"), c.PersistenceType.String(), []string{
			PersistenceTypeMemory.String(), PersistenceTypeBadger.String(), PersistenceTypeRedis.String(),
		}))
	}

	if c.ConnectRateLimit < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("connectRateLimit"), c.ConnectRateLimit, "connectRateLimit cannot be negative"))
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

func (p PollConfig) validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList
	if p.Interval <= 0 {
		allErrors = append(allErrors, field.Invalid(path.Child("interval"), p.Interval.String(), "interval must be positive"))
	}
	if p.BackoffMultiplier != 0 && p.BackoffMultiplier < 1 {
		allErrors = append(allErrors, field.Invalid(path.Child("backoffMultiplier"), p.BackoffMultiplier, "backoffMultiplier must be >= 1"))
	}
	if p.MaxInterval != 0 && p.MaxInterval < p.Interval {
		allErrors = append(allErrors, field.Invalid(path.Child("maxInterval"), p.MaxInterval.String(), "maxInterval must be >= interval"))
	}
	if p.MaxAttempts < 0 {
		allErrors = append(allErrors, field.Invalid(path.Child("maxAttempts"), p.MaxAttempts, "maxAttempts cannot be negative"))
	}
	return allErrors
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url must include a host")
	}
	return nil
}

// NewDefaultServerConfig returns a config populated with the defaults used by the CLI.
// SignerRequestURL is left empty and must be set before Validate passes.
func NewDefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:           DefaultPort,
		AppName:        DefaultAppName,
		WarpcastAPIURL: DefaultWarpcastAPIURL,
		HubAddress:     DefaultHubAddress,
		Poll: PollConfig{
			Interval: DefaultPollInterval,
		},
		HTTPTimeout:      DefaultHTTPTimeout,
		PersistenceType:  PersistenceTypeMemory,
		BadgerPath:       DefaultBadgerPath,
		ConnectRateLimit: DefaultConnectRateLimit,
	}
}
