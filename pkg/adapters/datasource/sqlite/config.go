package sqlite

import (
	"errors"
	"net/url"
	"strings"

	"github.com/ekaya-inc/ekaya-workspace/pkg/models"
)

// DefaultBusyTimeout is how long a reader waits on a locked database, in ms.
const DefaultBusyTimeout = "5000"

func validateConfig(cfg models.ConnectionConfig) error {
	if cfg.FilePath == "" {
		return errors.New("file_path is required")
	}
	if strings.Contains(cfg.FilePath, ":memory:") || strings.Contains(cfg.FilePath, "mode=memory") {
		return errors.New("in-memory databases cannot be shared across pooled connections")
	}
	return nil
}

// buildDSN opens the file read-only through a SQLite URI. mode=ro never
// creates the file, so a missing path fails at connect time.
func buildDSN(cfg models.ConnectionConfig) string {
	query := url.Values{}
	query.Set("mode", "ro")
	query.Add("_pragma", "busy_timeout("+cfg.Option("busy_timeout", DefaultBusyTimeout)+")")

	u := url.URL{Scheme: "file", Path: cfg.FilePath, RawQuery: query.Encode()}
	return u.String()
}
