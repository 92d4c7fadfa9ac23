package postgres

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/ekaya-inc/ekaya-workspace/pkg/config"
	"github.com/ekaya-inc/ekaya-workspace/pkg/models"
)

// DefaultSSLMode is used when the workspace config sets no sslmode option.
const DefaultSSLMode = "require"

// DefaultConnectTimeout is the dial timeout in seconds.
const DefaultConnectTimeout = "10"

func validateConfig(cfg models.ConnectionConfig) error {
	var errs []error
	if cfg.Host == "" {
		errs = append(errs, errors.New("host is required"))
	}
	if cfg.Username == "" {
		errs = append(errs, errors.New("username is required"))
	}
	if cfg.Database == "" {
		errs = append(errs, errors.New("database_name is required"))
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port: %d", cfg.Port))
	}
	switch mode := cfg.Option("sslmode", DefaultSSLMode); mode {
	case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
	default:
		errs = append(errs, fmt.Errorf("invalid sslmode: %s", mode))
	}
	return errors.Join(errs...)
}

// buildConnectionString builds a PostgreSQL URL with proper escaping.
// User-provided fields are escaped so passwords containing @, /, # or ?
// do not break URL parsing. Loopback hosts resolve to the Docker host when
// running in a container.
func buildConnectionString(cfg models.ConnectionConfig) string {
	host := config.ResolveHostForDocker(cfg.Host)

	query := url.Values{}
	query.Set("sslmode", cfg.Option("sslmode", DefaultSSLMode))
	query.Set("connect_timeout", cfg.Option("connect_timeout", DefaultConnectTimeout))
	query.Set("application_name", "ekaya-workspace")

	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(cfg.Username),
		url.QueryEscape(cfg.Password),
		host,
		cfg.Port,
		url.PathEscape(cfg.Database),
		query.Encode(),
	)
}
