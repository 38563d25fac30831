package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config agrupa la configuración leída del entorno.
type Config struct {
	HTTPPort string

	// DSN de Postgres. Vacío => adaptadores in-memory (modo dev).
	DatabaseDSN string

	JWTSecret string
	TokenTTL  time.Duration

	// Espera máxima por el lock de reserva antes de abortar con
	// un error reintentable.
	LockTimeout time.Duration

	// Intervalo de los escaneos de stock bajo y lotes por vencer.
	ScanInterval time.Duration

	// Días de anticipación con que se avisa un lote por vencer.
	ExpiryWindowDays int
}

// Load lee configuración desde env con defaults razonables.
// Si existe un .env lo carga primero (solo dev; en prod las vars vienen
// del entorno del proceso).
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		HTTPPort:         getEnv("HTTP_PORT", "8080"),
		DatabaseDSN:      os.Getenv("DB_DSN"),
		JWTSecret:        getEnv("JWT_SECRET", "dev_secret"),
		TokenTTL:         getDuration("TOKEN_TTL", 24*time.Hour),
		LockTimeout:      getDuration("RESERVATION_LOCK_TIMEOUT", 5*time.Second),
		ScanInterval:     getDuration("STOCK_SCAN_INTERVAL", 1*time.Hour),
		ExpiryWindowDays: getInt("BATCH_EXPIRY_WINDOW_DAYS", 30),
	}

	if _, err := strconv.Atoi(cfg.HTTPPort); err != nil {
		cfg.HTTPPort = "8080"
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
