package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type ServerConfig struct {
	Addr          string
	SessionSecret string
	UploadDir     string
	// Requests per second and burst for the login/register limiter.
	AuthRate  float64
	AuthBurst int
}

type DBConfig struct {
	Driver string // postgres, mysql or sqlite
	DSN    string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CartTTL  time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type OIDCConfig struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

func (c OIDCConfig) Enabled() bool {
	return c.Issuer != "" && c.ClientID != ""
}

type AfricaTalkingConfig struct {
	Username string
	APIKey   string
	SMSURL   string
	SenderID string
}

type EmailConfig struct {
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSRegion          string
	SenderEmail        string
	OperationsEmail    string
}

type Config struct {
	Server ServerConfig
	DB     DBConfig
	Redis  RedisConfig
	Kafka  KafkaConfig
	OIDC   OIDCConfig
	SMS    AfricaTalkingConfig
	Email  EmailConfig
}

// Load reads an optional .env file and assembles the full configuration from the environment.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Server: LoadServerConfig(),
		DB:     LoadDBConfig(),
		Redis:  LoadRedisConfig(),
		Kafka:  LoadKafkaConfig(),
		OIDC:   LoadOIDCConfig(),
		SMS:    LoadAfricaTalkingConfig(),
		Email:  LoadEmailConfig(),
	}
}

func LoadServerConfig() ServerConfig {
	return ServerConfig{
		Addr:          getEnvOrDefault("HTTP_ADDR", ":8080"),
		SessionSecret: getEnvOrDefault("SESSION_SECRET", "change-me"),
		UploadDir:     getEnvOrDefault("UPLOAD_DIR", "uploads"),
		AuthRate:      getEnvAsFloat("AUTH_RATE", 1),
		AuthBurst:     getEnvAsInt("AUTH_BURST", 5),
	}
}

func LoadDBConfig() DBConfig {
	driver := getEnvOrDefault("DB_DRIVER", "postgres")

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		switch driver {
		case "sqlite":
			dsn = "orders.db"
		case "mysql":
			dsn = getEnvOrDefault("MYSQL_USER", "root") + ":" + os.Getenv("MYSQL_PASSWORD") +
				"@tcp(" + getEnvOrDefault("MYSQL_HOST", "127.0.0.1") + ":" + getEnvOrDefault("MYSQL_PORT", "3306") + ")/" +
				getEnvOrDefault("MYSQL_DB", "orders") + "?parseTime=true"
		default:
			dsn = "host=" + getEnvOrDefault("POSTGRES_HOST", "localhost") +
				" user=" + getEnvOrDefault("POSTGRES_USER", "test") +
				" password=" + getEnvOrDefault("POSTGRES_PASSWORD", "test") +
				" dbname=" + getEnvOrDefault("POSTGRES_DB", "test") +
				" port=" + getEnvOrDefault("DB_PORT", "5432") +
				" sslmode=disable TimeZone=UTC"
		}
	}

	return DBConfig{Driver: driver, DSN: dsn}
}

// LoadRedisConfig leaves Addr empty when REDIS_ADDR is unset; carts are then kept in memory.
func LoadRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       getEnvAsInt("REDIS_DB", 0),
		CartTTL:  getEnvAsDuration("CART_TTL", 72*time.Hour),
	}
}

func LoadKafkaConfig() KafkaConfig {
	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}

	return KafkaConfig{
		Brokers: brokers,
		Topic:   getEnvOrDefault("KAFKA_ORDER_TOPIC", "order-topic"),
	}
}

func LoadOIDCConfig() OIDCConfig {
	return OIDCConfig{
		Issuer:       os.Getenv("OIDC_ISSUER"),
		ClientID:     os.Getenv("OIDC_CLIENT_ID"),
		ClientSecret: os.Getenv("OIDC_CLIENT_SECRET"),
		RedirectURL:  os.Getenv("OIDC_REDIRECT_URL"),
	}
}

func LoadAfricaTalkingConfig() AfricaTalkingConfig {
	return AfricaTalkingConfig{
		Username: os.Getenv("AT_USERNAME"),
		APIKey:   os.Getenv("AT_API_KEY"),
		SMSURL:   getEnvOrDefault("AT_SMS_URL", "https://api.sandbox.africastalking.com/version1/messaging"), // Sandbox URL
		SenderID: getEnvOrDefault("AT_SENDER_ID", "AFRICASTKNG"),
	}
}

func LoadEmailConfig() EmailConfig {
	return EmailConfig{
		AWSAccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		AWSRegion:          getEnvOrDefault("AWS_REGION", "us-east-1"),
		SenderEmail:        os.Getenv("AWS_SENDER_ADDRESS"),
		OperationsEmail:    os.Getenv("OPERATIONS_EMAIL"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
