package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreBackendPostgres = "postgres"
	StoreBackendMongo    = "mongo"
	StoreBackendMemory   = "memory"

	MQBackendNone     = ""
	MQBackendRabbitMQ = "rabbitmq"
	MQBackendPubSub   = "pubsub"

	ObjectStoreNone   = ""
	ObjectStoreMinio  = "minio"
	ObjectStoreGCS    = "gcs"
	ObjectStoreMemory = "memory"
)

type Config struct {
	Env          string
	ServerPort   int
	LogLevel     string
	StoreBackend string
	CORSOrigins  []string
	Database     DatabaseConfig
	Mongo        MongoConfig
	Auth         AuthConfig
	Sweep        SweepConfig
	Events       EventsConfig
	RabbitMQ     RabbitMQConfig
	PubSub       PubSubConfig
	ObjectStore  string
	Minio        MinioConfig
	GCS          GCSConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

type MongoConfig struct {
	URI      string
	Database string
}

// AuthConfig holds the token signing key. It is read once at start and
// handed to the handlers; nothing else reads JWT_SECRET.
type AuthConfig struct {
	JWTSecret      string
	TokenTTL       time.Duration
	LoginRateLimit float64
	LoginBurst     int
}

type SweepConfig struct {
	Interval time.Duration
}

// EventsConfig selects the broker relaying post events between instances.
type EventsConfig struct {
	Backend string
	Channel string
}

type RabbitMQConfig struct {
	URL           string
	PrefetchCount int
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
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

func LoadConfig() Config {
	env := getEnv("ENV", "prod")
	if env == "dev" {
		godotenv.Load()
	}

	dbConfig := DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "foodshare"),
		Password: getEnv("DB_PASSWORD", "password"),
		DBName:   getEnv("DB_NAME", "foodshare_db"),
		UseSSL:   getEnvBool("DB_SSL", false),
	}

	return Config{
		Env:          env,
		ServerPort:   getEnvInt("SERVER_PORT", 8080),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", StoreBackendPostgres)),
		CORSOrigins:  getEnvList("CORS_ORIGINS", []string{"*"}),
		Database:     dbConfig,
		Mongo: MongoConfig{
			URI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
			Database: getEnv("MONGO_DB", "foodshare-db"),
		},
		Auth: AuthConfig{
			JWTSecret:      strings.TrimSpace(getEnv("JWT_SECRET", "")),
			TokenTTL:       getEnvDuration("TOKEN_TTL", time.Hour),
			LoginRateLimit: getEnvFloat("LOGIN_RATE_PER_SEC", 1),
			LoginBurst:     getEnvInt("LOGIN_BURST", 5),
		},
		Sweep: SweepConfig{
			Interval: getEnvDuration("SWEEP_INTERVAL", time.Minute),
		},
		Events: EventsConfig{
			Backend: strings.ToLower(getEnv("EVENTS_BACKEND", MQBackendNone)),
			Channel: getEnv("EVENTS_CHANNEL", "foodshare.posts"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:           getEnv("RABBITMQ_URL", ""),
			PrefetchCount: getEnvInt("RABBITMQ_PREFETCH", 10),
		},
		PubSub: PubSubConfig{
			ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
			CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
			SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", ""),
		},
		ObjectStore: strings.ToLower(getEnv("OBJECT_STORE", ObjectStoreNone)),
		Minio: MinioConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "foodshare"),
			UseSSL:    getEnvBool("MINIO_SSL", false),
		},
		GCS: GCSConfig{
			Bucket:          getEnv("GCS_BUCKET", ""),
			ProjectID:       getEnv("GCS_PROJECT_ID", ""),
			CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
		},
	}
}

// Validate reports configuration that would prevent the server from running.
func (c Config) Validate() error {
	var problems []string
	if c.Auth.JWTSecret == "" {
		problems = append(problems, "JWT_SECRET is required")
	}
	if c.Auth.TokenTTL <= 0 {
		problems = append(problems, "TOKEN_TTL must be positive")
	}
	switch c.StoreBackend {
	case StoreBackendPostgres, StoreBackendMongo, StoreBackendMemory:
	default:
		problems = append(problems, fmt.Sprintf("unknown STORE_BACKEND %q", c.StoreBackend))
	}
	switch c.Events.Backend {
	case MQBackendNone, MQBackendRabbitMQ, MQBackendPubSub:
	default:
		problems = append(problems, fmt.Sprintf("unknown EVENTS_BACKEND %q", c.Events.Backend))
	}
	switch c.ObjectStore {
	case ObjectStoreNone, ObjectStoreMinio, ObjectStoreGCS, ObjectStoreMemory:
	default:
		problems = append(problems, fmt.Sprintf("unknown OBJECT_STORE %q", c.ObjectStore))
	}
	if c.Sweep.Interval < 0 {
		problems = append(problems, "SWEEP_INTERVAL must not be negative")
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.ParseFloat(strings.TrimSpace(valueStr), 64)
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := time.ParseDuration(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	valueStr, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(valueStr) == "" {
		return defaultValue
	}
	var values []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values
}
