package config

import "github.com/joho/godotenv"

// LoadEnv loads variables from a .env file in the working directory. Callers
// decide whether a missing file is fatal with os.IsNotExist.
func LoadEnv(filenames ...string) error {
	return godotenv.Load(filenames...)
}
