package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"tree-game-server/utils"

	"github.com/joho/godotenv"
)

// Config is everything the server and the admin tool read from the environment.
type Config struct {
	Port           string
	AllowedOrigins string

	// StoreDriver is "memory" or "postgres".
	StoreDriver string
	DatabaseURL string

	JWTSecret   string
	SessionTTL  time.Duration
	AdminToken  string
	AdminEmails []string

	Redis utils.RedisConfig
	R2    utils.R2Config

	MaxTreeHealth     int64
	AttackFlushEvery  time.Duration
	AttackFlushCount  int
	StatsFlushEvery   time.Duration
	StatsFlushValue   int64
	LeaderboardSync   time.Duration
	AttacksPerSecond  float64
	AttackBurst       int
	ShutdownGraceTime time.Duration
}

// Load reads .env (if present) and then the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	return &Config{
		Port:           getEnv("PORT", "5200"),
		AllowedOrigins: origins(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", "postgres")),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		JWTSecret:   os.Getenv("JWT_SECRET"),
		SessionTTL:  getEnvAsDuration("SESSION_TTL", 7*24*time.Hour),
		AdminToken:  os.Getenv("ADMIN_TOKEN"),
		AdminEmails: splitList(os.Getenv("ADMIN_EMAILS")),

		Redis: utils.RedisConfig{
			Host:        getEnv("REDIS_HOST", ""),
			Port:        getEnv("REDIS_PORT", "6379"),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          getEnvAsInt("REDIS_DB", 0),
			PoolSize:    getEnvAsInt("REDIS_POOL_SIZE", 10),
			DialTimeout: getEnvAsDuration("REDIS_DIAL_TIMEOUT", 10*time.Second),
		},
		R2: utils.R2Config{
			AccountID:       os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
			AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
			AccessKeySecret: os.Getenv("R2_ACCESS_KEY_SECRET"),
			Bucket:          os.Getenv("R2_BUCKET_NAME"),
			Endpoint:        os.Getenv("R2_ENDPOINT"),
		},

		MaxTreeHealth:     int64(getEnvAsInt("MAX_TREE_HEALTH", 1_000_000)),
		AttackFlushEvery:  getEnvAsDuration("ATTACK_FLUSH_INTERVAL", 10*time.Second),
		AttackFlushCount:  getEnvAsInt("ATTACK_FLUSH_COUNT", 50),
		StatsFlushEvery:   getEnvAsDuration("STATS_FLUSH_INTERVAL", 30*time.Second),
		StatsFlushValue:   int64(getEnvAsInt("STATS_FLUSH_VALUE", 1000)),
		LeaderboardSync:   getEnvAsDuration("LEADERBOARD_SYNC_INTERVAL", 5*time.Minute),
		AttacksPerSecond:  getEnvAsFloat("ATTACKS_PER_SECOND", 10),
		AttackBurst:       getEnvAsInt("ATTACK_BURST", 20),
		ShutdownGraceTime: getEnvAsDuration("SHUTDOWN_GRACE", 10*time.Second),
	}
}

// origins normalizes a comma separated origin list for fiber's cors config.
func origins(raw string) string {
	return strings.Join(splitList(raw), ",")
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("[Config] Invalid integer value for %s: %s, using default: %d", key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("[Config] Invalid number for %s: %s, using default: %g", key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("[Config] Invalid duration value for %s: %s, using default: %s", key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}
