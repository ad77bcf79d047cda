package config

type Config interface {
	EnvConfig
	CorsConfig
	OAuthConfig
	SecurityConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetDataFolder() string
	GetBaseURL() string
	GetBackendURL() string
	GetEnv() string
	GetLogFile() string
	GetLogLevel() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() []string
	GetAllowedHeaders() []string
}

type mainConfig struct {
	EnvVars
	Cors
	OAuth
	Security
}

// New reads the environment once and returns the process configuration.
func New() (Config, error) {
	e, err := loadEnvVars()
	if err != nil {
		return nil, err
	}
	return mainConfig{
		EnvVars:  e,
		Cors:     newCors(e.AllowedOrigins),
		OAuth:    OAuth{env: e},
		Security: Security{env: e},
	}, nil
}
