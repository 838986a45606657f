package config

import "time"

type Config interface {
	EnvConfig
	SessionConfig
	StorageConfig
}

type EnvConfig interface {
	GetAppName() string
	GetBaseURL() string
	GetEnv() string
	GetLogLevel() string
}

type mainConfig struct {
	EnvVars
	Session
	Storage
}

// New returns a Config backed by environment variables and built-in defaults.
func New() Config {
	return newMainConfig(&File{})
}

func newMainConfig(f *File) mainConfig {
	return mainConfig{
		EnvVars: EnvVars{file: f},
		Session: Session{file: f},
		Storage: Storage{file: f},
	}
}

// File mirrors the optional YAML configuration file. Environment variables
// always take precedence over values read from the file.
type File struct {
	AppName  string `yaml:"app_name"`
	BaseURL  string `yaml:"base_url"`
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`

	Session struct {
		RequestTimeout       time.Duration `yaml:"request_timeout"`
		RefreshLead          time.Duration `yaml:"refresh_lead"`
		RefreshCheckInterval time.Duration `yaml:"refresh_check_interval"`
		StorageKey           string        `yaml:"storage_key"`
	} `yaml:"session"`

	Storage struct {
		Backend       string `yaml:"backend"`
		Path          string `yaml:"path"`
		Passphrase    string `yaml:"passphrase"`
		RedisAddr     string `yaml:"redis_addr"`
		RedisPassword string `yaml:"redis_password"`
		RedisDB       int    `yaml:"redis_db"`
	} `yaml:"storage"`
}
