package util

import (
	"os"

	"github.com/ember-journal/ember/backend/pkg/logger"

	"github.com/joho/godotenv"
)

// LoadEnv loads a .env file into the process environment when one exists.
// A missing file is not an error; deployments usually inject variables
// directly.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using system environment variables")
	}
}

// GetEnv returns the value of an environment variable, empty when unset.
func GetEnv(key string) string {
	return os.Getenv(key)
}

// GetEnvBool parses an environment variable as a boolean. Anything other
// than the literal strings "true" and "false" yields the default.
func GetEnvBool(key string, defaultValue bool) bool {
	switch os.Getenv(key) {
	case "true":
		return true
	case "false":
		return false
	}
	return defaultValue
}
