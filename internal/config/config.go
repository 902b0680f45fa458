package config

import (
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env                 string
	Port                string
	LogLevel            string
	DatabaseURL         string
	RedisURL            string
	RabbitMQURL         string
	NotifyQueue         string
	FrontendURLEndsWith string
	DevPassword         string
	HealthAdminKey      string
	SessionCookie       string
	AutoMigrate         bool

	// Billing engine knobs.
	AllocationTolerance   decimal.Decimal // max |Σ working interest − 100|
	PaymentTermsDays      int             // JIB due date = sent date + N days when not given
	CodeSequencer         string          // "db" or "redis"
	CodeMaxRetries        int
	DBMaxRetries          int
	OverdueNotifyTTLHours int
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("NOTIFY_QUEUE", "billing.notifications")
	viper.SetDefault("ALLOCATION_TOLERANCE", "0.01")
	viper.SetDefault("JIB_PAYMENT_TERMS_DAYS", 30)
	viper.SetDefault("CODE_SEQUENCER", "db")
	viper.SetDefault("CODE_MAX_RETRIES", 5)
	viper.SetDefault("DB_MAX_RETRIES", 3)
	viper.SetDefault("OVERDUE_NOTIFY_TTL_HOURS", 24)
	viper.SetDefault("SESSION_COOKIE", "jv.sid")

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	dbURL := viper.GetString("DATABASE_URL_DEV")
	if env == "production" {
		dbURL = viper.GetString("DATABASE_URL_PROD")
	} else if env == "test" {
		dbURL = viper.GetString("DATABASE_URL_TEST")
	}
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}

	tolerance, err := decimal.NewFromString(viper.GetString("ALLOCATION_TOLERANCE"))
	if err != nil {
		return nil, err
	}

	return &Config{
		Env:                   env,
		Port:                  viper.GetString("PORT"),
		LogLevel:              viper.GetString("LOG_LEVEL"),
		DatabaseURL:           dbURL,
		RedisURL:              viper.GetString("REDIS_URL"),
		RabbitMQURL:           rabbitURL(),
		NotifyQueue:           viper.GetString("NOTIFY_QUEUE"),
		FrontendURLEndsWith:   viper.GetString("FRONTEND_URL_ENDS_WITH"),
		DevPassword:           viper.GetString("DEV_PASSWORD"),
		HealthAdminKey:        viper.GetString("HEALTH_ADMIN_KEY"),
		SessionCookie:         viper.GetString("SESSION_COOKIE"),
		AutoMigrate:           strings.EqualFold(viper.GetString("DB_AUTO_MIGRATE"), "true"),
		AllocationTolerance:   tolerance,
		PaymentTermsDays:      viper.GetInt("JIB_PAYMENT_TERMS_DAYS"),
		CodeSequencer:         strings.ToLower(viper.GetString("CODE_SEQUENCER")),
		CodeMaxRetries:        viper.GetInt("CODE_MAX_RETRIES"),
		DBMaxRetries:          viper.GetInt("DB_MAX_RETRIES"),
		OverdueNotifyTTLHours: viper.GetInt("OVERDUE_NOTIFY_TTL_HOURS"),
	}, nil
}

// rabbitURL accepts either RABBITMQ_URL or AMQP_URL. Empty means events are only logged.
func rabbitURL() string {
	if u := strings.TrimSpace(viper.GetString("RABBITMQ_URL")); u != "" {
		return u
	}
	return strings.TrimSpace(viper.GetString("AMQP_URL"))
}
