package config

import (
	"os"
	"strconv"
	"time"
)

const envPrefix = "VERDANT_"

func applyEnv(cfg *Config) {
	cfg.DataDir = getEnvAsString("DATA_DIR", cfg.DataDir)
	cfg.StorageKey = getEnvAsString("STORAGE_KEY", cfg.StorageKey)

	cfg.Log.Level = getEnvAsString("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.JSON = getEnvAsBool("LOG_JSON", cfg.Log.JSON)

	cfg.Remote.Driver = getEnvAsString("REMOTE_DRIVER", cfg.Remote.Driver)
	cfg.Remote.MongoURI = getEnvAsString("MONGO_URI", cfg.Remote.MongoURI)
	cfg.Remote.Database = getEnvAsString("MONGO_DATABASE", cfg.Remote.Database)
	cfg.Remote.RedisURL = getEnvAsString("REDIS_URL", cfg.Remote.RedisURL)
	cfg.Remote.SessionToken = getEnvAsString("SESSION_TOKEN", cfg.Remote.SessionToken)
	cfg.Remote.UserID = getEnvAsString("USER_ID", cfg.Remote.UserID)

	cfg.Cache.SweepInterval = getEnvAsDuration("CACHE_SWEEP_INTERVAL", cfg.Cache.SweepInterval)

	cfg.Sync.GoalDebounce = getEnvAsDuration("SYNC_GOAL_DEBOUNCE", cfg.Sync.GoalDebounce)
	cfg.Sync.BrainDumpDebounce = getEnvAsDuration("SYNC_BRAIN_DUMP_DEBOUNCE", cfg.Sync.BrainDumpDebounce)
	cfg.Sync.PreferencesThrottle = getEnvAsDuration("SYNC_PREFERENCES_THROTTLE", cfg.Sync.PreferencesThrottle)
	cfg.Sync.QueueInterval = getEnvAsDuration("SYNC_QUEUE_INTERVAL", cfg.Sync.QueueInterval)
	cfg.Sync.MaxAttempts = getEnvAsInt("SYNC_MAX_ATTEMPTS", cfg.Sync.MaxAttempts)

	cfg.Health.URL = getEnvAsString("HEALTH_URL", cfg.Health.URL)
	cfg.Health.Address = getEnvAsString("HEALTH_ADDRESS", cfg.Health.Address)
	cfg.Health.Interval = getEnvAsDuration("HEALTH_INTERVAL", cfg.Health.Interval)
	cfg.Health.Timeout = getEnvAsDuration("HEALTH_TIMEOUT", cfg.Health.Timeout)
	cfg.Health.Retries = getEnvAsInt("HEALTH_RETRIES", cfg.Health.Retries)

	cfg.Metrics.Addr = getEnvAsString("METRICS_ADDR", cfg.Metrics.Addr)
}

// getEnvAsString retrieves VERDANT_<key> or returns a default value
func getEnvAsString(key string, defaultVal string) string {
	if value, exists := os.LookupEnv(envPrefix + key); exists {
		return value
	}
	return defaultVal
}

// getEnvAsInt retrieves VERDANT_<key> and converts it to an integer
func getEnvAsInt(key string, defaultVal int) int {
	if value, exists := os.LookupEnv(envPrefix + key); exists {
		if result, err := strconv.Atoi(value); err == nil {
			return result
		}
	}
	return defaultVal
}

// getEnvAsDuration retrieves VERDANT_<key> and converts it to a Duration
func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value, exists := os.LookupEnv(envPrefix + key); exists {
		if result, err := time.ParseDuration(value); err == nil {
			return result
		}
	}
	return defaultVal
}

// getEnvAsBool retrieves VERDANT_<key> and converts it to a boolean
func getEnvAsBool(key string, defaultVal bool) bool {
	if value, exists := os.LookupEnv(envPrefix + key); exists {
		if result, err := strconv.ParseBool(value); err == nil {
			return result
		}
	}
	return defaultVal
}
