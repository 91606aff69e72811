package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadEnvFile reads path and sets environment variables for each "KEY=value" line.
// A missing file is not an error. Values in the file override the process environment,
// matching how the .env is used for local runs (keep .env out of git).
func LoadEnvFile(path string) error {
	path = filepath.Clean(path)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Overload(path)
}
