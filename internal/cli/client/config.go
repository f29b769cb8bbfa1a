package client

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	envAPIKey = "SHEETRAG_API_KEY"
	envAPIURL = "SHEETRAG_API_URL"

	defaultAPIURL = "http://localhost:8000"
)

// GlobalConfig is the saved connection in <user config dir>/sheetrag/config.json
type GlobalConfig struct {
	APIKey string `json:"api_key,omitempty"`
	APIURL string `json:"api_url"`
}

var (
	getConfigDirFunc  = defaultGetConfigDir
	getConfigPathFunc = defaultGetConfigPath
)

func defaultGetConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, "sheetrag"), nil
}

func defaultGetConfigPath() (string, error) {
	configDir, err := getConfigDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.json"), nil
}

// LoadGlobalConfig returns nil, not an error, when nothing has been saved.
func LoadGlobalConfig() (*GlobalConfig, error) {
	configPath, err := getConfigPathFunc()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config GlobalConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}
	return &config, nil
}

// SaveGlobalConfig writes config readable only by the current user.
func SaveGlobalConfig(config *GlobalConfig) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	configDir, err := getConfigDirFunc()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath, err := getConfigPathFunc()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func DeleteGlobalConfig() error {
	configPath, err := getConfigPathFunc()
	if err != nil {
		return err
	}
	if err := os.Remove(configPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete config file: %w", err)
	}
	return nil
}

// CredentialSource says where the server URL came from
type CredentialSource string

const (
	SourceFlag         CredentialSource = "flag"
	SourceEnv          CredentialSource = "env"
	SourceGlobalConfig CredentialSource = "global_config"
	SourceDefault      CredentialSource = "default"
)

// Connection is a resolved server address and optional API key
type Connection struct {
	APIURL string
	APIKey string
	Source CredentialSource
}

// ResolveConnection applies the cascade flag, env, global config, default.
// Each value is resolved independently; Source reports the URL's origin.
func ResolveConnection(flagAPIKey, flagAPIURL string) (Connection, error) {
	conn := Connection{APIURL: flagAPIURL, APIKey: flagAPIKey}
	if conn.APIURL != "" {
		conn.Source = SourceFlag
	}

	if conn.APIKey == "" {
		conn.APIKey = os.Getenv(envAPIKey)
	}
	if conn.APIURL == "" {
		if url := os.Getenv(envAPIURL); url != "" {
			conn.APIURL = url
			conn.Source = SourceEnv
		}
	}

	if conn.APIKey == "" || conn.APIURL == "" {
		global, err := LoadGlobalConfig()
		if err != nil {
			return Connection{}, err
		}
		if global != nil {
			if conn.APIKey == "" {
				conn.APIKey = global.APIKey
			}
			if conn.APIURL == "" && global.APIURL != "" {
				conn.APIURL = global.APIURL
				conn.Source = SourceGlobalConfig
			}
		}
	}

	if conn.APIURL == "" {
		conn.APIURL = defaultAPIURL
		conn.Source = SourceDefault
	}
	return conn, nil
}
