package config

import (
	"os"
	"time"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Revocation cache
	RedisURL      string
	RedisPassword string
	RedisTLS      bool

	// JWT
	JWTSecret     string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration

	// Uploads
	UploadDir     string
	MaxUploadSize int64

	// Default admin seed
	AdminUsername string
	AdminEmail    string
	AdminPassword string

	// Server
	Port        string
	Env         string
	CORSOrigins string
}

func Load() *Config {
	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "audiostack"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		RedisURL:      getEnv("REDIS_URL", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnv("REDIS_TLS_ENABLED", "false") == "true",

		JWTSecret:     getEnv("JWT_SECRET", ""),
		RefreshSecret: getEnv("REFRESH_TOKEN_SECRET", ""),
		AccessExpiry:  parseDuration(getEnv("JWT_ACCESS_EXPIRY", "5m"), 5*time.Minute),
		RefreshExpiry: parseDuration(getEnv("JWT_REFRESH_EXPIRY", "168h"), 168*time.Hour),

		UploadDir:     getEnv("UPLOAD_DIR", "./uploads"),
		MaxUploadSize: 25 * 1024 * 1024,

		AdminUsername: getEnv("DEFAULT_ADMIN_USERNAME", "admin"),
		AdminEmail:    getEnv("DEFAULT_ADMIN_EMAIL", "admin@audiostack.com"),
		AdminPassword: getEnv("DEFAULT_ADMIN_PASSWORD", ""),

		Port:        getEnv("PORT", "5000"),
		Env:         getEnv("APP_ENV", "development"),
		CORSOrigins: getEnv("CORS_ORIGINS", "http://localhost:3000"),
	}
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
