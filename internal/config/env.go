package config

import (
	"os"
	"strings"
)

// ApplyEnv overrides deployment settings from the environment. Unset or blank
// variables leave the file values alone.
func ApplyEnv(c *Config) {
	if v := getEnv("BOSS_ADMIN_TOKEN"); v != "" {
		c.Server.AdminToken = v
	}
	if v := getEnv("BOSS_DATA_DIR"); v != "" {
		c.Server.DataDir = v
	}
	if v := getEnv("BOSS_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := getEnv("BOSS_LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := getEnv("BOSS_TIMEZONE"); v != "" {
		c.Timezone = v
	}
}

func getEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
