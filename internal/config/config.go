package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration required by the API process.
// Values come from an optional YAML file (CONFIG_FILE) and are then
// overridden by environment variables.
// No business logic should depend on raw environment variables.
type Config struct {
	App    AppConfig    `yaml:"app"`
	Store  StoreConfig  `yaml:"store"`
	DB     DBConfig     `yaml:"db"`
	Redis  RedisConfig  `yaml:"redis"`
	Auth   AuthConfig   `yaml:"auth"`
	Login  LoginConfig  `yaml:"login"`
	Google GoogleConfig `yaml:"google"`

	Bootstrap BootstrapConfig `yaml:"bootstrap"`
}

type AppConfig struct {
	Env  string `yaml:"env"`
	Port int    `yaml:"port"`
}

// StoreConfig selects the identity/audit storage adapter.
// Accepts: postgres, memory
type StoreConfig struct {
	Driver string `yaml:"driver"`
}

type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string `yaml:"sslmode"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AuthConfig struct {
	// JWTSecret is the single HMAC-SHA256 signing key. Minimum 32 bytes.
	JWTSecret       string        `yaml:"jwt_secret"`
	JWTIssuer       string        `yaml:"jwt_issuer"`
	AccessTokenTTL  time.Duration `yaml:"access_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_ttl"`
	BcryptCost      int           `yaml:"bcrypt_cost"`
}

// LoginConfig tunes the failed-login limiter. MaxAttempts == 0 disables it.
type LoginConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Window      time.Duration `yaml:"window"`
}

type GoogleConfig struct {
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	RedirectURL  string        `yaml:"redirect_url"`
	HTTPTimeout  time.Duration `yaml:"http_timeout"`

	// Endpoint overrides; empty means Google's public endpoints.
	AuthURL     string `yaml:"auth_url"`
	TokenURL    string `yaml:"token_url"`
	UserInfoURL string `yaml:"userinfo_url"`
}

// BootstrapConfig optionally seeds one ROLE_ADMIN account at startup when
// it does not exist yet. Both fields empty disables seeding.
type BootstrapConfig struct {
	AdminID       string `yaml:"admin_id"`
	AdminPassword string `yaml:"admin_password"`
	AdminEmail    string `yaml:"admin_email"`
}

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	MinSecretBytes = 32

	DefaultAccessTokenTTL  = 30 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
	DefaultBcryptCost      = 10
	DefaultMaxAttempts     = 5
	DefaultAttemptWindow   = 15 * time.Minute
	DefaultGoogleTimeout   = 10 * time.Second
)

func Load() (Config, error) {
	c := Config{Login: LoginConfig{MaxAttempts: -1}}

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFile(path, &c); err != nil {
			return Config{}, err
		}
	}

	var parseErrs []error
	add := func(err error) {
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
	}

	envString("APP_ENV", &c.App.Env)
	add(envInt("APP_PORT", &c.App.Port))

	envString("STORE_DRIVER", &c.Store.Driver)

	envString("DB_HOST", &c.DB.Host)
	add(envInt("DB_PORT", &c.DB.Port))
	envString("DB_USER", &c.DB.User)
	envSecret("DB_PASSWORD", &c.DB.Password)
	envString("DB_NAME", &c.DB.Name)
	envString("DB_SSLMODE", &c.DB.SSLMode)

	envString("REDIS_HOST", &c.Redis.Host)
	add(envInt("REDIS_PORT", &c.Redis.Port))
	envSecret("REDIS_PASSWORD", &c.Redis.Password)
	add(envInt("REDIS_DB", &c.Redis.DB))

	envSecret("JWT_SECRET", &c.Auth.JWTSecret)
	envString("JWT_ISSUER", &c.Auth.JWTIssuer)
	add(envDuration("JWT_ACCESS_TTL", &c.Auth.AccessTokenTTL))
	add(envDuration("JWT_REFRESH_TTL", &c.Auth.RefreshTokenTTL))
	add(envInt("PASSWORD_BCRYPT_COST", &c.Auth.BcryptCost))

	add(envInt("LOGIN_MAX_ATTEMPTS", &c.Login.MaxAttempts))
	add(envDuration("LOGIN_ATTEMPT_WINDOW", &c.Login.Window))

	envString("GOOGLE_CLIENT_ID", &c.Google.ClientID)
	envSecret("GOOGLE_CLIENT_SECRET", &c.Google.ClientSecret)
	envString("GOOGLE_REDIRECT_URL", &c.Google.RedirectURL)
	add(envDuration("GOOGLE_HTTP_TIMEOUT", &c.Google.HTTPTimeout))
	envString("GOOGLE_AUTH_URL", &c.Google.AuthURL)
	envString("GOOGLE_TOKEN_URL", &c.Google.TokenURL)
	envString("GOOGLE_USERINFO_URL", &c.Google.UserInfoURL)

	envString("BOOTSTRAP_ADMIN_ID", &c.Bootstrap.AdminID)
	envSecret("BOOTSTRAP_ADMIN_PASSWORD", &c.Bootstrap.AdminPassword)
	envString("BOOTSTRAP_ADMIN_EMAIL", &c.Bootstrap.AdminEmail)

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func loadFile(path string, c *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// ApplyDefaults fills optional values. Production-only requirements are
// left empty so Validate can report them.
func (c *Config) ApplyDefaults() {
	if c.Store.Driver == "" {
		c.Store.Driver = StoreDriverPostgres
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" && !c.IsProduction() {
		// Local-friendly default; production must be explicit.
		c.DB.SSLMode = "disable"
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	if c.Auth.BcryptCost == 0 {
		c.Auth.BcryptCost = DefaultBcryptCost
	}
	if c.Login.MaxAttempts < 0 {
		c.Login.MaxAttempts = DefaultMaxAttempts
	}
	if c.Login.Window <= 0 {
		c.Login.Window = DefaultAttemptWindow
	}
	if c.Google.HTTPTimeout <= 0 {
		c.Google.HTTPTimeout = DefaultGoogleTimeout
	}
}

func (c Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	switch c.Store.Driver {
	case StoreDriverPostgres:
		errs = append(errs, c.validateDB()...)
	case StoreDriverMemory:
		if c.IsProduction() {
			errs = append(errs, errors.New("STORE_DRIVER=memory is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be one of postgres, memory, got %q", c.Store.Driver))
	}

	if c.Login.MaxAttempts > 0 {
		if c.Redis.Host == "" {
			errs = append(errs, errors.New("REDIS_HOST is required when LOGIN_MAX_ATTEMPTS > 0"))
		}
		if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	} else if len(c.Auth.JWTSecret) < MinSecretBytes {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d bytes", MinSecretBytes))
	}
	if c.IsProduction() && c.Auth.JWTIssuer == "" {
		errs = append(errs, errors.New("JWT_ISSUER is required in production"))
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("PASSWORD_BCRYPT_COST must be between 4 and 31, got %d", c.Auth.BcryptCost))
	}

	if c.Google.ClientID != "" {
		if c.Google.ClientSecret == "" {
			errs = append(errs, errors.New("GOOGLE_CLIENT_SECRET is required when GOOGLE_CLIENT_ID is set"))
		}
		if c.Google.RedirectURL == "" {
			errs = append(errs, errors.New("GOOGLE_REDIRECT_URL is required when GOOGLE_CLIENT_ID is set"))
		}
	}

	if (c.Bootstrap.AdminID == "") != (c.Bootstrap.AdminPassword == "") {
		errs = append(errs, errors.New("BOOTSTRAP_ADMIN_ID and BOOTSTRAP_ADMIN_PASSWORD must be set together"))
	}

	return joinErrors(errs)
}

func (c Config) validateDB() []error {
	var errs []error
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
	if c.DB.SSLMode == "" {
		errs = append(errs, errors.New("DB_SSLMODE is required in production"))
	} else if !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}
	return errs
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

// FederationEnabled reports whether Google login is configured.
func (c Config) FederationEnabled() bool {
	return c.Google.ClientID != ""
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

func envString(key string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// envSecret does not trim; secrets are taken byte for byte.
func envSecret(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	*dst = n
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	d, err := ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

// ParseDuration accepts a Go duration ("30m") or a bare integer of
// milliseconds ("1800000").
func ParseDuration(v string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		if ms < 0 {
			return 0, fmt.Errorf("duration must not be negative, got %q", v)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return d, nil
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
