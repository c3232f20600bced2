package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	portEnvVar       = "PORT"
	appNameVar       = "APP_NAME"
	envVar           = "ENV"
	logLevelVar      = "LOG_LEVEL"
	homeRouteVar     = "HOME_ROUTE"
	loginRouteVar    = "LOGIN_ROUTE"
	registerRouteVar = "REGISTER_ROUTE"
	productionEnv    = "PROD"
	developmentEnv   = "DEV"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "8080")
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Session Auth")
}

func (EnvVars) GetEnv() string {
	return strings.ToUpper(GetEnv(envVar, developmentEnv))
}

func (e EnvVars) IsProduction() bool {
	return e.GetEnv() == productionEnv
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

func (EnvVars) GetHomeRoute() string {
	return GetEnv(homeRouteVar, "/")
}

func (EnvVars) GetLoginRoute() string {
	return GetEnv(loginRouteVar, "/login")
}

func (EnvVars) GetRegisterRoute() string {
	return GetEnv(registerRouteVar, "/register")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// parseSeconds reads an integer number of seconds.
func parseSeconds(envVar string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(envVar)
	if raw == "" {
		return defaultValue, nil
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return defaultValue, fmt.Errorf("invalid %s %q: must be a positive number of seconds", envVar, raw)
	}
	return time.Duration(seconds) * time.Second, nil
}

func parseDuration(envVar string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(envVar)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return defaultValue, fmt.Errorf("invalid %s %q: must be a positive duration", envVar, raw)
	}
	return d, nil
}

func parseBool(envVar string, defaultValue bool) (bool, error) {
	raw := os.Getenv(envVar)
	if raw == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid %s %q: must be a boolean", envVar, raw)
	}
	return b, nil
}

func parseInt(envVar string, defaultValue int) (int, error) {
	raw := os.Getenv(envVar)
	if raw == "" {
		return defaultValue, nil
	}
	i, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid %s %q: must be an integer", envVar, raw)
	}
	return i, nil
}
