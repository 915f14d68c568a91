package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	catalogFileName = "catalog.json"
	configDirName   = ".adsbridge"
	configFileName  = "config.yaml"
	stateFileName   = "state.json"
)

// ConfigDir returns the adsbridge configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, configDirName), nil
}

// ConfigFilePath returns the path to the local config file.
func ConfigFilePath() (string, error) {
	return inConfigDir(configFileName)
}

// CatalogFilePath returns the default path of the selection catalog.
func CatalogFilePath() (string, error) {
	return inConfigDir(catalogFileName)
}

// StateFilePath returns the default path of the local state file.
func StateFilePath() (string, error) {
	return inConfigDir(stateFileName)
}

// LocalConfigExists checks if a local config file exists.
func LocalConfigExists() bool {
	configPath, err := ConfigFilePath()
	if err != nil {
		return false
	}
	_, err = os.Stat(configPath)
	return err == nil
}

func inConfigDir(name string) (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}
