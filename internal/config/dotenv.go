package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
)

// DefaultDotEnv is the file LoadDotEnv reads when no path is given.
const DefaultDotEnv = ".env"

// LoadDotEnv copies variables from dotenv files into the process environment
// so that Load picks them up. Variables already set are not overridden. A
// missing file is reported as loaded=false with no error.
func LoadDotEnv(paths ...string) (bool, error) {
	if len(paths) == 0 {
		paths = []string{DefaultDotEnv}
	}
	if err := godotenv.Load(paths...); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("%w: dotenv: %w", ErrLoadConfig, err)
	}
	return true, nil
}
