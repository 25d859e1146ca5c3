package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"spades-live/spades"
)

// Config carries everything the server reads from the environment.
type Config struct {
	Addr string

	LedgerMode string // memory | sqlite | postgres
	NATSURL    string

	NextHandDelay time.Duration
	SweepInterval time.Duration

	DefaultRules spades.Rules
}

// Load reads .env when present, then the environment, falling back to
// defaults suitable for local development.
func Load() Config {
	if err := godotenv.Load(); err == nil {
		log.Printf("[Config] Loaded .env")
	}

	rules := spades.DefaultRules()
	rules.AllowNil = envBool("SPADES_ALLOW_NIL", rules.AllowNil)
	rules.AllowBlindNil = envBool("SPADES_ALLOW_BLIND_NIL", rules.AllowBlindNil)
	rules.MaxPoints = envInt("SPADES_MAX_POINTS", rules.MaxPoints)
	rules.MinPoints = envInt("SPADES_MIN_POINTS", rules.MinPoints)
	rules.CoinStake = int64(envInt("SPADES_COIN_STAKE", int(rules.CoinStake)))
	rules.TurnTimeout = envDuration("SPADES_TURN_TIMEOUT", rules.TurnTimeout)

	return Config{
		Addr:          envString("SPADES_ADDR", ":8080"),
		LedgerMode:    envString("LEDGER_MODE", "memory"),
		NATSURL:       strings.TrimSpace(os.Getenv("NATS_URL")),
		NextHandDelay: envDuration("SPADES_NEXT_HAND_DELAY", 6*time.Second),
		SweepInterval: envDuration("SPADES_SWEEP_INTERVAL", time.Minute),
		DefaultRules:  rules,
	}
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[Config] Invalid %s=%q, using %d", key, v, def)
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[Config] Invalid %s=%q, using %v", key, v, def)
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[Config] Invalid %s=%q, using %s", key, v, def)
		return def
	}
	return d
}
