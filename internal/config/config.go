package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	HTTPAddr            string
	JWTIssuer           string
	JWTSecret           string
	JWTTTL              time.Duration
	InternalToken       string
	WebSocketOrigin     string
	StoreDriver         string
	DBDSN               string
	NATSURL             string
	LogLevel            string
	AccountStartBalance decimal.Decimal
	LiquidityMode       string
	LiquiditySeed       int64
	StopOutLevel        decimal.Decimal
	SeedPrices          string
	RiskConfigPath      string
	RateLimitPerSecond  float64
	RateLimitBurst      int
}

// Load reads the environment. A .env file in the working directory, when
// present, fills variables that are not already set.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

func FromEnv() (Config, error) {
	var c Config
	var missing []string
	c.HTTPAddr = os.Getenv("HTTP_ADDR")
	if c.HTTPAddr == "" {
		missing = append(missing, "HTTP_ADDR")
	}
	c.JWTIssuer = os.Getenv("JWT_ISSUER")
	if c.JWTIssuer == "" {
		missing = append(missing, "JWT_ISSUER")
	}
	c.JWTSecret = os.Getenv("JWT_SECRET")
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	c.JWTTTL = 24 * time.Hour
	if raw := os.Getenv("JWT_TTL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return c, fmt.Errorf("invalid JWT_TTL: %w", err)
		}
		c.JWTTTL = d
	}
	c.InternalToken = os.Getenv("INTERNAL_API_TOKEN")
	if c.InternalToken == "" {
		missing = append(missing, "INTERNAL_API_TOKEN")
	}
	c.WebSocketOrigin = os.Getenv("WS_ORIGIN")
	if c.WebSocketOrigin == "" {
		c.WebSocketOrigin = "*"
	}
	c.StoreDriver = strings.ToLower(strings.TrimSpace(os.Getenv("STORE_DRIVER")))
	if c.StoreDriver == "" {
		c.StoreDriver = "memory"
	}
	if c.StoreDriver != "memory" && c.StoreDriver != "postgres" {
		return c, errors.New("invalid STORE_DRIVER: use memory or postgres")
	}
	c.DBDSN = os.Getenv("DB_DSN")
	if c.StoreDriver == "postgres" && c.DBDSN == "" {
		missing = append(missing, "DB_DSN")
	}
	c.NATSURL = os.Getenv("NATS_URL")
	c.LogLevel = os.Getenv("LOG_LEVEL")

	balance := os.Getenv("ACCOUNT_START_BALANCE")
	if balance == "" {
		balance = "10000"
	}
	b, err := decimal.NewFromString(balance)
	if err != nil || b.IsNegative() {
		return c, errors.New("invalid ACCOUNT_START_BALANCE")
	}
	c.AccountStartBalance = b

	c.LiquidityMode = strings.ToLower(strings.TrimSpace(os.Getenv("LIQUIDITY_MODE")))
	if c.LiquidityMode == "" {
		c.LiquidityMode = "random"
	}
	if c.LiquidityMode != "random" && c.LiquidityMode != "full" {
		return c, errors.New("invalid LIQUIDITY_MODE: use random or full")
	}
	c.LiquiditySeed = time.Now().UnixNano()
	if raw := os.Getenv("LIQUIDITY_SEED"); raw != "" {
		seed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return c, errors.New("invalid LIQUIDITY_SEED")
		}
		c.LiquiditySeed = seed
	}

	stopOut := os.Getenv("STOP_OUT_LEVEL")
	if stopOut == "" {
		stopOut = "0.5"
	}
	so, err := decimal.NewFromString(stopOut)
	if err != nil || !so.IsPositive() {
		return c, errors.New("invalid STOP_OUT_LEVEL")
	}
	c.StopOutLevel = so

	c.SeedPrices = os.Getenv("SEED_PRICES")
	c.RiskConfigPath = os.Getenv("RISK_CONFIG")

	c.RateLimitPerSecond = 10
	if raw := os.Getenv("RATE_LIMIT_RPS"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			return c, errors.New("invalid RATE_LIMIT_RPS")
		}
		c.RateLimitPerSecond = v
	}
	c.RateLimitBurst = 30
	if raw := os.Getenv("RATE_LIMIT_BURST"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return c, errors.New("invalid RATE_LIMIT_BURST")
		}
		c.RateLimitBurst = v
	}

	if len(missing) > 0 {
		return c, errors.New("missing required env: " + strings.Join(missing, ","))
	}
	return c, nil
}
