package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// The value is immutable after Load; nothing reads ambient globals later.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Telephony TelephonyConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	AccessTokenTTL time.Duration
}

// TelephonyConfig carries the provider integration settings. The enabled
// flag and webhook token used to be mutable site settings; here they are
// fixed at process start and passed into the gateway at construction.
type TelephonyConfig struct {
	// Enabled gates all webhook processing and outbound dialing. Disabled
	// is not an error state: webhooks are acknowledged as no-ops.
	Enabled bool

	// WebhookToken is the shared secret the provider sends back, in the
	// form "<api_key>:<api_secret>". Empty means authentication is off.
	WebhookToken string

	// APIEndpoint is the provider's click-to-call originate URL.
	APIEndpoint string
	// HangupEndpoint is the provider's call-hangup URL.
	HangupEndpoint string
	// APIToken is the bearer token for outbound provider calls.
	APIToken string

	// AgentNumber/CallerID are the site-wide defaults used when no
	// per-user mapping exists.
	AgentNumber string
	CallerID    string

	// Region is the default phone region for E.164 formatting of dialed
	// numbers, e.g. "IN".
	Region string

	// DialTimeout bounds outbound provider HTTP calls.
	DialTimeout time.Duration

	// MaxConcurrentDials caps simultaneous originations per agent.
	MaxConcurrentDials int
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.AccessTokenTTL = optDuration("JWT_ACCESS_TTL")

	c.Telephony.Enabled = boolEnv("TELEPHONY_ENABLED")
	c.Telephony.WebhookToken = os.Getenv("TELEPHONY_WEBHOOK_TOKEN")
	c.Telephony.APIEndpoint = strings.TrimSpace(os.Getenv("TELEPHONY_API_ENDPOINT"))
	c.Telephony.HangupEndpoint = strings.TrimSpace(os.Getenv("TELEPHONY_HANGUP_ENDPOINT"))
	c.Telephony.APIToken = os.Getenv("TELEPHONY_API_TOKEN")
	c.Telephony.AgentNumber = strings.TrimSpace(os.Getenv("TELEPHONY_AGENT_NUMBER"))
	c.Telephony.CallerID = strings.TrimSpace(os.Getenv("TELEPHONY_CALLER_ID"))
	c.Telephony.Region = strings.TrimSpace(os.Getenv("TELEPHONY_REGION"))
	c.Telephony.DialTimeout = optDuration("TELEPHONY_DIAL_TIMEOUT")
	{
		v := strings.TrimSpace(os.Getenv("TELEPHONY_MAX_CONCURRENT_DIALS"))
		if v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				parseErrs = append(parseErrs, fmt.Errorf("TELEPHONY_MAX_CONCURRENT_DIALS must be an integer, got %q", v))
			}
			c.Telephony.MaxConcurrentDials = n
		}
	}

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}

	if c.Telephony.Enabled {
		if c.Telephony.APIEndpoint == "" {
			errs = append(errs, errors.New("TELEPHONY_API_ENDPOINT is required when telephony is enabled"))
		}
		if c.Telephony.APIToken == "" {
			errs = append(errs, errors.New("TELEPHONY_API_TOKEN is required when telephony is enabled"))
		}
		if c.Telephony.AgentNumber == "" {
			errs = append(errs, errors.New("TELEPHONY_AGENT_NUMBER is required when telephony is enabled"))
		}
		if c.IsProduction() && c.Telephony.WebhookToken == "" {
			// Open mode is allowed but must be a deliberate choice
			// outside production.
			errs = append(errs, errors.New("TELEPHONY_WEBHOOK_TOKEN is required in production"))
		}
	}
	if c.Telephony.Region == "" {
		c.Telephony.Region = "IN"
	}
	if c.Telephony.DialTimeout <= 0 {
		c.Telephony.DialTimeout = 30 * time.Second
	}
	if c.Telephony.MaxConcurrentDials <= 0 {
		c.Telephony.MaxConcurrentDials = 2
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func boolEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
