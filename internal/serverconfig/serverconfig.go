package serverconfig

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type ConfigStore struct {
	RunAddr           string
	DatabaseURI       string
	RedisAddr         string
	JWTSecret         string
	TokenTTL          time.Duration
	LogLevel          string
	ReconcileInterval time.Duration
	ReconcileGrace    time.Duration
	RateLimit         int
	TrustedProxies    []string
	SuperAdminEmail   string

	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioPhoneNumber string
	TwilioBaseURL     string
	SMSCountryCode    string
}

func NewConfigStore() *ConfigStore {
	return &ConfigStore{}
}

// ParseFlags reads the command line and the environment. An app.env file in
// the working directory is used when present.
func (configStore *ConfigStore) ParseFlags() error {
	return configStore.Parse(os.Args[1:], ".")
}

// Parse fills the store from args, environment variables and an optional
// app.env under configPath. Explicit flags win over the environment.
func (configStore *ConfigStore) Parse(args []string, configPath string) error {
	fs := pflag.NewFlagSet("cafeloyalty", pflag.ContinueOnError)
	fs.StringP("a", "a", ":8080", "address and port to run server")
	fs.StringP("d", "d", "", "postgres dsn")
	fs.StringP("r", "r", "", "redis address for the rate limiter, empty disables it")
	fs.StringP("j", "j", "", "secret used to sign admin tokens")
	if err := fs.Parse(args); err != nil {
		return err
	}

	v := viper.New()
	v.AddConfigPath(configPath)
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("RUN_ADDRESS", ":8080")
	v.SetDefault("TOKEN_TTL", "30m")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("RECONCILE_INTERVAL", "30s")
	v.SetDefault("RECONCILE_GRACE", "1m")
	v.SetDefault("RATE_LIMIT", 60)
	v.SetDefault("TWILIO_BASE_URL", "https://api.twilio.com")
	v.SetDefault("SMS_DEFAULT_COUNTRY_CODE", "92")
	for _, key := range []string{
		"DATABASE_URI", "REDIS_ADDR", "JWT_SECRET", "SUPER_ADMIN_EMAIL", "TRUSTED_PROXIES",
		"TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN", "TWILIO_PHONE_NUMBER",
	} {
		v.BindEnv(key)
	}

	v.BindPFlag("RUN_ADDRESS", fs.Lookup("a"))
	v.BindPFlag("DATABASE_URI", fs.Lookup("d"))
	v.BindPFlag("REDIS_ADDR", fs.Lookup("r"))
	v.BindPFlag("JWT_SECRET", fs.Lookup("j"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}

	configStore.RunAddr = v.GetString("RUN_ADDRESS")
	configStore.DatabaseURI = v.GetString("DATABASE_URI")
	configStore.RedisAddr = v.GetString("REDIS_ADDR")
	configStore.JWTSecret = v.GetString("JWT_SECRET")
	configStore.TokenTTL = v.GetDuration("TOKEN_TTL")
	configStore.LogLevel = v.GetString("LOG_LEVEL")
	configStore.ReconcileInterval = v.GetDuration("RECONCILE_INTERVAL")
	configStore.ReconcileGrace = v.GetDuration("RECONCILE_GRACE")
	configStore.RateLimit = v.GetInt("RATE_LIMIT")
	configStore.TrustedProxies = splitList(v.GetString("TRUSTED_PROXIES"))
	configStore.SuperAdminEmail = v.GetString("SUPER_ADMIN_EMAIL")
	configStore.TwilioAccountSID = v.GetString("TWILIO_ACCOUNT_SID")
	configStore.TwilioAuthToken = v.GetString("TWILIO_AUTH_TOKEN")
	configStore.TwilioPhoneNumber = v.GetString("TWILIO_PHONE_NUMBER")
	configStore.TwilioBaseURL = v.GetString("TWILIO_BASE_URL")
	configStore.SMSCountryCode = v.GetString("SMS_DEFAULT_COUNTRY_CODE")
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// SetupLogger configures the global zerolog logger.
func (configStore *ConfigStore) SetupLogger() {
	level, err := zerolog.ParseLevel(configStore.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339
	if level <= zerolog.DebugLevel {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}
