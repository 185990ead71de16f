// Package config reads the environment and builds the process-wide
// clients. MustInit* helpers abort startup on anything unreachable;
// a service that cannot reach its backends has nothing useful to do.
package config

import (
	"context"
	"log"
	"os"
	"time"

	"database/sql"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

const (
	defaultHTTPAddr   = ":8080"
	defaultSessionTTL = 24 * time.Hour
	defaultPushURL    = "https://exp.host/--/api/v2/push/send"
)

type Config struct {
	HTTPAddr   string
	JWTSecret  []byte
	SessionTTL time.Duration
	PushURL    string
	QRBaseURL  string
	OrderTopic string
}

// Load pulls .env if present, then assembles the config from the
// environment.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:   getenv("HTTP_ADDR", defaultHTTPAddr),
		JWTSecret:  []byte(os.Getenv("JWT_SECRET")),
		SessionTTL: defaultSessionTTL,
		PushURL:    getenv("PUSH_URL", defaultPushURL),
		QRBaseURL:  getenv("QR_BASE_URL", "plateful://pickup"),
		OrderTopic: getenv("KAFKA_ORDER_TOPIC", "order-events"),
	}
	if len(cfg.JWTSecret) == 0 {
		log.Fatal("JWT_SECRET is required")
	}
	if ttl := os.Getenv("SESSION_TTL"); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			log.Fatal("Invalid SESSION_TTL:", err)
		}
		cfg.SessionTTL = d
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// MustInitPostgres opens and pings the database. The DSN is returned
// alongside the pool because the LISTEN/NOTIFY listener dials its own
// dedicated connection.
func MustInitPostgres() (*sql.DB, string) {
	connStr := "host=" + getenv("DB_HOST", "localhost") +
		" port=" + getenv("DB_PORT", "5432") +
		" user=" + getenv("DB_USER", "plateful") +
		" password=" + os.Getenv("DB_PASSWORD") +
		" dbname=" + getenv("DB_NAME", "plateful") +
		" sslmode=" + getenv("DB_SSLMODE", "disable")

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	if err = db.Ping(); err != nil {
		log.Fatal("Failed to ping database:", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	return db, connStr
}

func MustInitRedis() *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: getenv("REDIS_HOST", "localhost") + ":" + getenv("REDIS_PORT", "6379"),
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}

	return client
}

func NewKafkaReader(topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: []string{getenv("KAFKA_BROKER", "localhost:9092")},
		Topic:   topic,
		GroupID: groupID,
	})
}

func NewKafkaWriter(topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:     kafka.TCP(getenv("KAFKA_BROKER", "localhost:9092")),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
}
