package main

import (
	"os"
	"strconv"
	"time"
)

// Config holds the player process settings, read from FLAGDUEL_* environment
// variables (with defaults). A .env file in the working directory is loaded
// first when present.
type Config struct {
	NATSURL       string
	SubjectPrefix string
	GatewayPort   string
	WalletAddress string
	SearchTimeout time.Duration
	LogLevel      string
	PrettyLog     bool
}

func loadConfig() Config {
	return Config{
		NATSURL:       getEnv("FLAGDUEL_NATS_URL", "nats://localhost:4222"),
		SubjectPrefix: getEnv("FLAGDUEL_SUBJECT_PREFIX", "flagduel"),
		GatewayPort:   getEnv("FLAGDUEL_GATEWAY_PORT", "8080"),
		WalletAddress: getEnv("FLAGDUEL_WALLET_ADDRESS", ""),
		SearchTimeout: time.Duration(getEnvAsInt("FLAGDUEL_SEARCH_TIMEOUT_SEC", 30)) * time.Second,
		LogLevel:      getEnv("FLAGDUEL_LOG_LEVEL", "info"),
		PrettyLog:     getEnvAsBool("FLAGDUEL_LOG_PRETTY", true),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
