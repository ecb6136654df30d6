package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	HTTPAddr      string
	MySQLDSN      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int
	CartTTL       time.Duration
	SweepInterval time.Duration
}

// Load reads configuration from the environment, optionally seeded from a
// .env file in the working directory.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("no .env file found, using environment")
	}

	return Config{
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		MySQLDSN:      getenv("MYSQL_DSN", "root:root@tcp(localhost:3306)/glowora?parseTime=true"),
		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getint("REDIS_DB", 0),
		RedisPoolSize: getint("REDIS_POOL_SIZE", 100),
		CartTTL:       getduration("CART_TTL", 24*time.Hour),
		SweepInterval: getduration("CACHE_SWEEP_INTERVAL", time.Minute),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		logrus.Warnf("invalid integer for %s, using default %d", key, fallback)
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		logrus.Warnf("invalid duration for %s, using default %s", key, fallback)
	}
	return fallback
}
