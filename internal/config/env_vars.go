package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvVars holds every environment value the process reads. It is parsed once
// by New and never re-read.
type EnvVars struct {
	Port               string        `env:"PORT"                 envDefault:"8080"`
	AppName            string        `env:"APP_NAME"             envDefault:"Agentify"`
	DataFolder         string        `env:"FOLDER"               envDefault:"./data"`
	BaseURL            string        `env:"BASE_URL"             envDefault:"http://localhost:8080"`
	BackendURL         string        `env:"BACKEND_URL"          envDefault:"http://localhost:8000"`
	Environment        string        `env:"ENV"                  envDefault:"DEV"`
	LogFile            string        `env:"LOG_FILE"`
	LogLevel           string        `env:"LOG_LEVEL"            envDefault:"info"`
	SessionPersistence string        `env:"SESSION_PERSISTENCE"  envDefault:"local"`
	AllowedOrigins     []string      `env:"ALLOWED_ORIGINS"      envSeparator:","`
	GithubClientID     string        `env:"GITHUB_CLIENT_ID"`
	GithubClientSecret string        `env:"GITHUB_CLIENT_SECRET"`
	GithubRedirectURI  string        `env:"GITHUB_REDIRECT_URI"`
	GithubScopes       []string      `env:"GITHUB_SCOPES"        envSeparator:"," envDefault:"repo"`
	PopupTimeout       time.Duration `env:"POPUP_TIMEOUT"        envDefault:"5m"`
	OpenBrowser        bool          `env:"OPEN_BROWSER"         envDefault:"true"`
}

var _ EnvConfig = EnvVars{}

func loadEnvVars() (EnvVars, error) {
	var e EnvVars
	if err := env.Parse(&e); err != nil {
		return EnvVars{}, fmt.Errorf("[config loadEnvVars] %w", err)
	}
	return e, nil
}

func (e EnvVars) GetPort() string {
	port := e.Port
	if port != "" && port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetDataFolder() string {
	return e.DataFolder
}

// GetBaseURL returns the URL the dashboard is served from (e.g., "http://localhost:8080")
func (e EnvVars) GetBaseURL() string {
	return strings.TrimSuffix(e.BaseURL, "/")
}

// GetBackendURL returns the base URL of the analysis backend
func (e EnvVars) GetBackendURL() string {
	return strings.TrimSuffix(e.BackendURL, "/")
}

func (e EnvVars) GetEnv() string {
	if e.Environment == "" {
		return "DEV"
	}
	return e.Environment
}

func (e EnvVars) GetLogFile() string {
	return e.LogFile
}

func (e EnvVars) GetLogLevel() string {
	return e.LogLevel
}
