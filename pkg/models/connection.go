package models

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strconv"
	"strings"
)

// DatabaseType tags which engine a ConnectionConfig targets.
type DatabaseType string

const (
	DatabaseTypePostgres  DatabaseType = "postgres"
	DatabaseTypeMySQL     DatabaseType = "mysql"
	DatabaseTypeSQLServer DatabaseType = "sqlserver"
	DatabaseTypeSQLite    DatabaseType = "sqlite"
)

// defaultPorts is applied during normalization so that an omitted port and
// the engine's well-known port fingerprint identically.
var defaultPorts = map[DatabaseType]int{
	DatabaseTypePostgres:  5432,
	DatabaseTypeMySQL:     3306,
	DatabaseTypeSQLServer: 1433,
}

// IsFileBacked reports whether the engine is addressed by a local file path.
func (t DatabaseType) IsFileBacked() bool {
	return t == DatabaseTypeSQLite
}

// ConnectionConfig identifies and authenticates against one target database.
// Which fields are required depends on Type; validation is done by the
// engine's registered dialect.
type ConnectionConfig struct {
	Type     DatabaseType      `json:"db_type" yaml:"db_type"`
	Host     string            `json:"host,omitempty" yaml:"host,omitempty"`
	Port     int               `json:"port,omitempty" yaml:"port,omitempty"`
	Database string            `json:"database_name,omitempty" yaml:"database_name,omitempty"`
	Username string            `json:"username,omitempty" yaml:"username,omitempty"`
	Password string            `json:"password,omitempty" yaml:"password,omitempty"`
	FilePath string            `json:"file_path,omitempty" yaml:"file_path,omitempty"`
	Options  map[string]string `json:"options,omitempty" yaml:"options,omitempty"` // sslmode, encrypt, tls
}

// Normalized returns a copy with whitespace trimmed, the host lowercased,
// the default port filled in and the file path cleaned.
func (c ConnectionConfig) Normalized() ConnectionConfig {
	n := c
	n.Type = DatabaseType(strings.ToLower(strings.TrimSpace(string(c.Type))))
	n.Host = strings.ToLower(strings.TrimSpace(c.Host))
	n.Database = strings.TrimSpace(c.Database)
	n.Username = strings.TrimSpace(c.Username)
	if n.Port == 0 {
		n.Port = defaultPorts[n.Type]
	}
	if p := strings.TrimSpace(c.FilePath); p != "" {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		n.FilePath = filepath.Clean(p)
	}
	if len(c.Options) > 0 {
		n.Options = make(map[string]string, len(c.Options))
		for k, v := range c.Options {
			n.Options[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
		}
	}
	return n
}

// Fingerprint identifies the physical target. The password and driver
// options are excluded: they change how we connect, not what we connect to.
func (c ConnectionConfig) Fingerprint() Fingerprint {
	n := c.Normalized()

	var parts []string
	if n.Type.IsFileBacked() {
		parts = []string{string(n.Type), n.FilePath}
	} else {
		parts = []string{string(n.Type), n.Host, strconv.Itoa(n.Port), n.Database, n.Username}
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// Merge overlays the non-zero fields of patch onto c.
func (c ConnectionConfig) Merge(patch ConnectionConfig) ConnectionConfig {
	m := c
	if patch.Type != "" {
		m.Type = patch.Type
	}
	if patch.Host != "" {
		m.Host = patch.Host
	}
	if patch.Port != 0 {
		m.Port = patch.Port
	}
	if patch.Database != "" {
		m.Database = patch.Database
	}
	if patch.Username != "" {
		m.Username = patch.Username
	}
	if patch.Password != "" {
		m.Password = patch.Password
	}
	if patch.FilePath != "" {
		m.FilePath = patch.FilePath
	}
	if len(patch.Options) > 0 {
		opts := make(map[string]string, len(c.Options)+len(patch.Options))
		for k, v := range c.Options {
			opts[k] = v
		}
		for k, v := range patch.Options {
			opts[k] = v
		}
		m.Options = opts
	}
	return m
}

// Redacted returns a copy safe to hand back to callers.
func (c ConnectionConfig) Redacted() ConnectionConfig {
	r := c
	if r.Password != "" {
		r.Password = "********"
	}
	return r
}

// Option returns the named driver option, or def when unset.
func (c ConnectionConfig) Option(key, def string) string {
	if v, ok := c.Options[key]; ok && v != "" {
		return v
	}
	return def
}

// Fingerprint is the hex SHA-256 identity of a physical database target.
type Fingerprint string

func (f Fingerprint) String() string { return string(f) }

// Short is a log-friendly prefix.
func (f Fingerprint) Short() string {
	if len(f) <= 12 {
		return string(f)
	}
	return string(f[:12])
}
