package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Redis    RedisConfig
	HTTP     HTTPConfig
	Location *time.Location // dates and check-in times are computed in this zone
	SeedDemo bool           // seed demo classes and students into an empty store
}

type RedisConfig struct {
	Addr     string // defaults to 127.0.0.1:6379
	Password string
	DB       int // defaults to 8
}

type HTTPConfig struct {
	Port    string // defaults to 8080
	GinMode string // debug, release or test
}

// Addr returns the listen address for gin.
func (c HTTPConfig) Addr() string {
	return ":" + c.Port
}

// envString reads an environment variable with a default for unset or empty values.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envInt reads an environment variable and parses it as a non-negative integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	log.Printf("Ignoring invalid %s=%q, using %d", key, s, defaultVal)
	return defaultVal
}

// envBool reads an environment variable as a boolean.
func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		log.Printf("Ignoring invalid %s=%q, using %t", key, s, defaultVal)
		return defaultVal
	}
	return b
}

func envLocation(key string) *time.Location {
	name := os.Getenv(key)
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Printf("Unknown time zone %s=%q, using local time", key, name)
		return time.Local
	}
	return loc
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real env vars take precedence.
func Load() *Config {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()

	return &Config{
		Redis: RedisConfig{
			Addr:     envString("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       envInt("REDIS_DB", 8),
		},
		HTTP: HTTPConfig{
			Port:    envString("HTTP_PORT", "8080"),
			GinMode: envString("GIN_MODE", "debug"),
		},
		Location: envLocation("ATTENDANCE_TZ"),
		SeedDemo: envBool("SEED_DEMO_DATA", true),
	}
}
