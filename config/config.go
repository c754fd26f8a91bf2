package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

const (
	DefaultLogFileName     = "okta-fastpass-toolkit.log"
	DefaultLogDir          = "logs"
	DefaultOutputDir       = "."
	DefaultScanWorkers     = 5
	DefaultRateLimitPerSec = 10.0
	DefaultRunTimeoutMin   = 480
	DefaultLedgerPath      = "remediation.db"
)

// Config carries every recognized option, loaded once at startup and passed
// explicitly to each component.
type Config struct {
	OktaURL   string
	OktaToken string

	LogDir      string
	LogFileName string

	AppListPath string
	OutputDir   string

	ScanWorkers     int
	RateLimitPerSec float64
	RunTimeoutMin   int
	MetricsPort     string

	MSOAuthTokenURL     string
	MSOAuthClientID     string
	MSOAuthClientSecret string
	MSSourceEmail       string

	EnrollmentTemplatePath string
	ProactiveTemplatePath  string
	AttachmentPath         string

	LedgerPath  string
	UserCSVPath string
}

// Load reads the optional .env file and the process environment into a
// Config. A missing .env file is not an error; the variables may be set
// directly in the environment. Validation happens separately so each command
// can require only the options it uses.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, errors.Wrapf(err, "load env file %s", envFile)
		}
	} else {
		// default ./.env, ignored when absent
		_ = godotenv.Load()
	}

	scanWorkers, err := getEnvAsInt("SCAN_WORKERS", DefaultScanWorkers)
	if err != nil {
		return nil, err
	}
	rateLimit, err := getEnvAsFloat("RATE_LIMIT_PER_SEC", DefaultRateLimitPerSec)
	if err != nil {
		return nil, err
	}
	runTimeout, err := getEnvAsInt("RUN_TIMEOUT_MIN", DefaultRunTimeoutMin)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		OktaURL:   strings.TrimRight(os.Getenv("OKTA_URL"), "/"),
		OktaToken: os.Getenv("OKTA_TOKEN"),

		LogDir:      getEnv("LOG_DIR", DefaultLogDir),
		LogFileName: getEnv("LOG_FILE_NAME", DefaultLogFileName),

		AppListPath: os.Getenv("APP_LIST_PATH"),
		OutputDir:   getEnv("OUTPUT_DIR", DefaultOutputDir),

		ScanWorkers:     scanWorkers,
		RateLimitPerSec: rateLimit,
		RunTimeoutMin:   runTimeout,
		MetricsPort:     os.Getenv("METRICS_PORT"),

		MSOAuthTokenURL:     os.Getenv("MS_OAUTH_TOKEN_URL"),
		MSOAuthClientID:     os.Getenv("MS_OAUTH_CLIENT_ID"),
		MSOAuthClientSecret: os.Getenv("MS_OAUTH_CLIENT_SEC"),
		MSSourceEmail:       os.Getenv("MS_SOURCE_EMAIL"),

		EnrollmentTemplatePath: os.Getenv("ENROLLMENT_EMAIL_TEMPLATE_PATH"),
		ProactiveTemplatePath:  os.Getenv("PROACTIVE_EMAIL_TEMPLATE_PATH"),
		AttachmentPath:         os.Getenv("ATTACHMENT_FILEPATH"),

		LedgerPath:  getEnv("REMEDIATION_DB_PATH", DefaultLedgerPath),
		UserCSVPath: os.Getenv("USER_CSV_PATH"),
	}

	return cfg, nil
}

// ValidateScan checks the options the inventory scanner needs before any
// network call is made.
func (c *Config) ValidateScan() error {
	if err := c.validateOkta(); err != nil {
		return err
	}
	if c.AppListPath == "" {
		return errors.New("APP_LIST_PATH is not set and no -apps flag was provided")
	}
	if _, err := os.Stat(c.AppListPath); err != nil {
		return errors.Wrapf(err, "application list %s is not readable", c.AppListPath)
	}
	if c.ScanWorkers <= 0 {
		return errors.Errorf("SCAN_WORKERS must be positive, got %d", c.ScanWorkers)
	}
	return nil
}

// ValidateNotify checks the options the proactive-notification workflow needs.
func (c *Config) ValidateNotify() error {
	if err := c.validateOkta(); err != nil {
		return err
	}
	if err := c.validateMail(); err != nil {
		return err
	}
	return c.validateTemplate(c.ProactiveTemplatePath, "PROACTIVE_EMAIL_TEMPLATE_PATH")
}

// ValidateReset checks the options the factor-reset workflow needs.
func (c *Config) ValidateReset() error {
	if err := c.validateOkta(); err != nil {
		return err
	}
	if err := c.validateMail(); err != nil {
		return err
	}
	return c.validateTemplate(c.EnrollmentTemplatePath, "ENROLLMENT_EMAIL_TEMPLATE_PATH")
}

// ValidateVerify checks the options the enrollment-verification workflow needs.
func (c *Config) ValidateVerify() error {
	return c.validateOkta()
}

func (c *Config) validateOkta() error {
	if c.OktaURL == "" {
		return errors.New("OKTA_URL is not set")
	}
	if !strings.HasPrefix(c.OktaURL, "http://") && !strings.HasPrefix(c.OktaURL, "https://") {
		return errors.Errorf("OKTA_URL %q is not an http(s) URL", c.OktaURL)
	}
	if c.OktaToken == "" {
		return errors.New("OKTA_TOKEN is not set")
	}
	return nil
}

func (c *Config) validateMail() error {
	switch {
	case c.MSOAuthTokenURL == "":
		return errors.New("MS_OAUTH_TOKEN_URL is not set")
	case c.MSOAuthClientID == "":
		return errors.New("MS_OAUTH_CLIENT_ID is not set")
	case c.MSOAuthClientSecret == "":
		return errors.New("MS_OAUTH_CLIENT_SEC is not set")
	case c.MSSourceEmail == "":
		return errors.New("MS_SOURCE_EMAIL is not set")
	}
	return nil
}

func (c *Config) validateTemplate(path, key string) error {
	if path == "" {
		return errors.Errorf("%s is not set", key)
	}
	if _, err := os.Stat(path); err != nil {
		return errors.Wrapf(err, "email template %s is not readable", path)
	}
	return nil
}

func getEnv(key string, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) (int, error) {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal, nil
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return 0, errors.Errorf("%s must be an integer, got %q", key, valStr)
	}
	return val, nil
}

func getEnvAsFloat(key string, defaultVal float64) (float64, error) {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal, nil
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil {
		return 0, errors.Errorf("%s must be a number, got %q", key, valStr)
	}
	return val, nil
}
