package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort     int
	PublicURL      string
	MigrationsPath string
	AllowedOrigins []string
	Database       DatabaseConfig
	Auth           AuthConfig
	Mail           MailConfig
	Storage        StorageConfig
	MQ             MQConfig
	Redis          RedisConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

type AuthConfig struct {
	JWTSecret  string
	TokenTTL   time.Duration
	ResetTTL   time.Duration
	BcryptCost int
}

type MailConfig struct {
	Driver   string
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type StorageConfig struct {
	Backend string
	Minio   MinioConfig
	GCS     GCSConfig
	S3      S3Config
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type GCSConfig struct {
	Bucket          string
	ProjectID       string
	CredentialsFile string
}

type S3Config struct {
	Region       string
	Bucket       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

type MQConfig struct {
	Backend            string
	OrderEventsChannel string
	RabbitMQ           RabbitMQConfig
	PubSub             PubSubConfig
}

type RabbitMQConfig struct {
	URL             string
	QueueDurable    bool
	QueueAutoDelete bool
	PrefetchCount   int
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

type RedisConfig struct {
	URL      string
	StatsTTL time.Duration
}

const (
	MailDriverSMTP = "smtp"
	MailDriverLog  = "log"

	BackendNone     = "none"
	BackendMinio    = "minio"
	BackendGCS      = "gcs"
	BackendS3       = "s3"
	BackendRabbitMQ = "rabbitmq"
	BackendPubSub   = "pubsub"
)

func LoadConfig() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	dbConfig := DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "merchforge"),
		Password: getEnv("DB_PASSWORD", "password"),
		DBName:   getEnv("DB_NAME", "merchforge_db"),
		UseSSL:   getEnvBool("DB_SSL", false),
	}

	authConfig := AuthConfig{
		JWTSecret:  strings.TrimSpace(getEnv("JWT_SECRET", "")),
		TokenTTL:   getEnvDuration("JWT_TTL", time.Hour),
		ResetTTL:   getEnvDuration("RESET_TOKEN_TTL", time.Hour),
		BcryptCost: getEnvInt("BCRYPT_COST", 10),
	}

	mailConfig := MailConfig{
		Driver:   strings.ToLower(getEnv("MAIL_DRIVER", MailDriverSMTP)),
		Host:     getEnv("SMTP_HOST", "smtp.gmail.com"),
		Port:     getEnvInt("SMTP_PORT", 465),
		Username: getEnv("EMAIL_USER", ""),
		Password: getEnv("EMAIL_PASS", ""),
		From:     getEnv("EMAIL_FROM", ""),
	}

	storageConfig := StorageConfig{
		Backend: strings.ToLower(getEnv("STORAGE_BACKEND", BackendNone)),
		Minio: MinioConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "designs"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		GCS: GCSConfig{
			Bucket:          getEnv("GCS_BUCKET", ""),
			ProjectID:       getEnv("GCS_PROJECT_ID", ""),
			CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
		},
		S3: S3Config{
			Region:       getEnv("S3_REGION", "us-east-1"),
			Bucket:       getEnv("S3_BUCKET", ""),
			Endpoint:     getEnv("S3_ENDPOINT", ""),
			AccessKey:    getEnv("S3_ACCESS_KEY", ""),
			SecretKey:    getEnv("S3_SECRET_KEY", ""),
			UsePathStyle: getEnvBool("S3_USE_PATH_STYLE", false),
		},
	}

	mqConfig := MQConfig{
		Backend:            strings.ToLower(getEnv("MQ_BACKEND", BackendNone)),
		OrderEventsChannel: getEnv("MQ_ORDER_EVENTS_CHANNEL", "order-events"),
		RabbitMQ: RabbitMQConfig{
			URL:             getEnv("RABBITMQ_URL", ""),
			QueueDurable:    getEnvBool("RABBITMQ_QUEUE_DURABLE", true),
			QueueAutoDelete: getEnvBool("RABBITMQ_QUEUE_AUTO_DELETE", false),
			PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH", 10),
		},
		PubSub: PubSubConfig{
			ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
			CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
			SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
		},
	}

	return Config{
		ServerPort:     getEnvInt("SERVER_PORT", 5000),
		PublicURL:      strings.TrimRight(getEnv("PUBLIC_URL", "http://localhost:5173"), "/"),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "file://internal/db/migrations"),
		AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		Database:       dbConfig,
		Auth:           authConfig,
		Mail:           mailConfig,
		Storage:        storageConfig,
		MQ:             mqConfig,
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", ""),
			StatsTTL: getEnvDuration("STATS_CACHE_TTL", 30*time.Second),
		},
	}
}

// Validate reports the first configuration problem that must keep the
// process from starting.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.Auth.TokenTTL <= 0 || c.Auth.ResetTTL <= 0 {
		return errors.New("token lifetimes must be positive")
	}

	switch c.Mail.Driver {
	case MailDriverSMTP:
		if c.Mail.Host == "" || c.Mail.Username == "" || c.Mail.Password == "" {
			return errors.New("EMAIL_USER, EMAIL_PASS and SMTP_HOST are required for the smtp mail driver")
		}
	case MailDriverLog:
	default:
		return fmt.Errorf("unknown mail driver %q", c.Mail.Driver)
	}

	switch c.Storage.Backend {
	case BackendNone, BackendMinio, BackendGCS, BackendS3:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	switch c.MQ.Backend {
	case BackendNone, BackendRabbitMQ, BackendPubSub:
	default:
		return fmt.Errorf("unknown mq backend %q", c.MQ.Backend)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		fmt.Sscanf(valueStr, "%d", &value)
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	switch strings.ToLower(strings.TrimSpace(valueStr)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	value, err := time.ParseDuration(strings.TrimSpace(valueStr))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvList(key string, defaultValue []string) []string {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	var values []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
