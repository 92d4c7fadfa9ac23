package datasource

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ekaya-inc/ekaya-workspace/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-workspace/pkg/models"
)

// DialectInfo describes a registered engine for discovery.
type DialectInfo struct {
	Type        models.DatabaseType `json:"type"`         // "postgres", "sqlserver", "sqlite"
	DisplayName string              `json:"display_name"` // "PostgreSQL", "Microsoft SQL Server"
	Description string              `json:"description"`
}

// DialectRegistration pairs the discovery info with the capability set.
type DialectRegistration struct {
	Info    DialectInfo
	Dialect Dialect
}

var (
	registryMu sync.RWMutex
	registry   = make(map[models.DatabaseType]DialectRegistration)
)

// Register is called by each engine package's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg DialectRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredDialects returns info for all registered engines, sorted by type.
func RegisteredDialects() []DialectInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]DialectInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// GetDialect returns the capability set for dbType.
func GetDialect(dbType models.DatabaseType) (Dialect, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if reg, ok := registry[dbType]; ok {
		return reg.Dialect, nil
	}
	return nil, apperrors.New(apperrors.ErrInvalidConfig, fmt.Errorf("unsupported db_type %q (not compiled in)", dbType))
}

// IsRegistered checks if an engine is available.
func IsRegistered(dbType models.DatabaseType) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[dbType]
	return ok
}

// ValidateConfig resolves cfg's dialect and validates it.
func ValidateConfig(cfg models.ConnectionConfig) error {
	d, err := GetDialect(cfg.Normalized().Type)
	if err != nil {
		return err
	}
	if err := d.ValidateConfig(cfg.Normalized()); err != nil {
		return apperrors.New(apperrors.ErrInvalidConfig, err)
	}
	return nil
}
