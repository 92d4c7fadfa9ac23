package mysql

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"

	"github.com/ekaya-inc/ekaya-workspace/pkg/config"
	"github.com/ekaya-inc/ekaya-workspace/pkg/models"
)

// DefaultDialTimeout bounds the TCP connect and handshake.
const DefaultDialTimeout = 10 * time.Second

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
	switch tls := cfg.Option("tls", "false"); tls {
	case "true", "false", "skip-verify", "preferred":
	default:
		errs = append(errs, fmt.Errorf("invalid tls option: %s", tls))
	}
	return errors.Join(errs...)
}

// buildDSN formats a go-sql-driver DSN. The driver's own formatter handles
// escaping, so passwords containing @ or / survive intact.
func buildDSN(cfg models.ConnectionConfig) string {
	c := mysqldriver.NewConfig()
	c.User = cfg.Username
	c.Passwd = cfg.Password
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(config.ResolveHostForDocker(cfg.Host), strconv.Itoa(cfg.Port))
	c.DBName = cfg.Database
	c.Timeout = DefaultDialTimeout
	c.ParseTime = true
	c.TLSConfig = cfg.Option("tls", "false")
	return c.FormatDSN()
}
