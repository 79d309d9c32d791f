package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// dotenvFile picks the env file for the current deployment environment.
func dotenvFile() string {
	for _, name := range []string{"NODE_ENV", "APP_ENV"} {
		if strings.EqualFold(os.Getenv(name), "production") {
			return ".env.prod"
		}
	}
	return ".env.dev"
}

// loadDotenv loads the deployment env file, then a plain .env, into the
// process environment. Variables that are already set are never replaced.
func loadDotenv() {
	for _, path := range []string{dotenvFile(), ".env"} {
		err := godotenv.Load(path)
		if err == nil {
			return
		}
		if !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "[WARN] could not load env file %s: %v\n", path, err)
		}
	}
}
