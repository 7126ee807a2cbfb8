package cmd

import (
	"runtime"

	"emperror.dev/errors"
	"github.com/apex/log"

	"github.com/priyxstudio/fwauth/config"
	"github.com/priyxstudio/fwauth/firewall"
	"github.com/priyxstudio/fwauth/firewall/memfw"
	"github.com/priyxstudio/fwauth/firewall/netfw"
	"github.com/priyxstudio/fwauth/firewall/sqlfw"
	"github.com/priyxstudio/fwauth/internal/database"
)

// resolveBackend turns "auto" into the store native to this platform.
func resolveBackend(name string) string {
	if name != config.BackendAuto && name != "" {
		return name
	}
	if runtime.GOOS == "windows" {
		return config.BackendWindows
	}
	return config.BackendSQLite
}

// openDatabase initializes the process wide database once. Later calls reuse
// the open instance.
func openDatabase(c *config.Configuration) error {
	if databaseOpen {
		return nil
	}
	if err := database.Initialize(c.System.Database); err != nil {
		return err
	}
	databaseOpen = true
	return nil
}

var databaseOpen bool

func closeDatabase() {
	if !databaseOpen {
		return
	}
	if err := database.Close(); err != nil {
		log.WithError(err).Warn("failed to close local database")
	}
	databaseOpen = false
}

// newService returns the firewall policy store selected by the configuration.
func newService(c *config.Configuration) (firewall.Service, error) {
	switch backend := resolveBackend(c.Backend); backend {
	case config.BackendWindows:
		return netfw.New(), nil
	case config.BackendMemory:
		return memfw.New(), nil
	case config.BackendSQLite:
		if err := openDatabase(c); err != nil {
			return nil, errors.WrapIf(err, "cmd: failed to open sqlite backend")
		}
		return sqlfw.New(database.Instance()), nil
	default:
		return nil, errors.Errorf("cmd: unknown backend %q", backend)
	}
}
