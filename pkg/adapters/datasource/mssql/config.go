package mssql

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/ekaya-inc/ekaya-workspace/pkg/config"
	"github.com/ekaya-inc/ekaya-workspace/pkg/models"
)

// DefaultConnectionTimeout returns the default connection timeout in seconds.
func DefaultConnectionTimeout() int {
	return 30
}

func validateConfig(cfg models.ConnectionConfig) error {
	var errs []error
	if cfg.Host == "" {
		errs = append(errs, errors.New("host is required"))
	}
	if cfg.Database == "" {
		errs = append(errs, errors.New("database_name is required"))
	}
	if cfg.Username == "" {
		errs = append(errs, errors.New("username is required for SQL authentication"))
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port: %d", cfg.Port))
	}
	switch enc := cfg.Option("encrypt", "true"); enc {
	case "true", "false", "strict", "disable":
	default:
		errs = append(errs, fmt.Errorf("invalid encrypt option: %s", enc))
	}
	if v := cfg.Option("connection_timeout", ""); v != "" {
		if n, err := strconv.Atoi(v); err != nil || n < 0 {
			errs = append(errs, fmt.Errorf("invalid connection_timeout: %s", v))
		}
	}
	return errors.Join(errs...)
}

// buildConnectionString builds a sqlserver:// URL for SQL authentication.
func buildConnectionString(cfg models.ConnectionConfig) string {
	query := url.Values{}
	query.Add("database", cfg.Database)
	query.Add("encrypt", cfg.Option("encrypt", "true"))

	if cfg.Option("trust_server_certificate", "false") == "true" {
		query.Add("TrustServerCertificate", "true")
	}

	query.Add("connection timeout", cfg.Option("connection_timeout", strconv.Itoa(DefaultConnectionTimeout())))
	query.Add("app name", "ekaya-workspace")

	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.Username, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", config.ResolveHostForDocker(cfg.Host), cfg.Port),
		RawQuery: query.Encode(),
	}
	return u.String()
}
