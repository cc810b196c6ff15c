package app

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// EnvFileVar names a variable pointing at an alternative env file.
const EnvFileVar = "TUBEGRAB_ENV_FILE"

// LoadEnv loads .env from the working directory, or the file named by
// TUBEGRAB_ENV_FILE. Variables already set in the environment win.
// A missing default .env is not an error, a missing explicit file is.
func LoadEnv() error {
	path := os.Getenv(EnvFileVar)
	explicit := path != ""
	if !explicit {
		path = ".env"
	}

	if err := godotenv.Load(path); err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}
