// Package env reads .env files and resolves variables against the process
// environment. A variable set in the process always wins over the file.
package env

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Processes a .env file from a given filename. A missing file is reported with
// an error wrapping fs.ErrNotExist.
func ProcessEnv(filename string) (map[string]string, error) {
	envMap, err := godotenv.Read(filename)
	if err != nil {
		return map[string]string{}, fmt.Errorf("read env file %s: %w", filename, err)
	}
	return envMap, nil
}

// ProcessOptionalEnv is ProcessEnv that treats a missing or unnamed file as empty.
func ProcessOptionalEnv(filename string) (map[string]string, error) {
	if filename == "" {
		return map[string]string{}, nil
	}
	envMap, err := ProcessEnv(filename)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	return envMap, err
}

// Source looks variables up in the process environment, then in the values
// parsed from a .env file.
type Source struct {
	file   map[string]string
	lookup func(string) (string, bool)
}

func NewSource(file map[string]string) *Source {
	if file == nil {
		file = map[string]string{}
	}
	return &Source{file: file, lookup: os.LookupEnv}
}

// Get returns the trimmed value of key, or fallback when it is unset or blank.
func (s *Source) Get(key, fallback string) string {
	if v, ok := s.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	if v, ok := s.file[key]; ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}
