package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*DatabaseOptions)(nil)

// Supported database drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DatabaseOptions selects and configures the state store.
type DatabaseOptions struct {
	// Driver is one of memory, sqlite or postgres.
	Driver string `json:"driver" mapstructure:"driver"`

	// DSN is the data source name. For sqlite this is a file path.
	DSN string `json:"dsn" mapstructure:"dsn"`

	MaxOpenConns    int           `json:"max-open-conns" mapstructure:"max-open-conns"`
	MaxIdleConns    int           `json:"max-idle-conns" mapstructure:"max-idle-conns"`
	ConnMaxLifetime time.Duration `json:"conn-max-lifetime" mapstructure:"conn-max-lifetime"`
}

// NewDatabaseOptions returns options for a local sqlite file.
func NewDatabaseOptions() *DatabaseOptions {
	return &DatabaseOptions{
		Driver:          DriverSQLite,
		DSN:             "robofleet.db",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

func (o *DatabaseOptions) Validate() []error {
	var errs []error

	switch o.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if o.DSN == "" {
			errs = append(errs, fmt.Errorf("database: dsn is required for driver %q", o.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("database: unsupported driver %q", o.Driver))
	}

	if o.MaxOpenConns < 0 || o.MaxIdleConns < 0 {
		errs = append(errs, fmt.Errorf("database: connection limits must not be negative"))
	}

	return errs
}

func (o *DatabaseOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Driver, "database.driver", o.Driver, "State store driver: memory, sqlite or postgres.")
	fs.StringVar(&o.DSN, "database.dsn", o.DSN, "Data source name (file path for sqlite, URL for postgres).")
	fs.IntVar(&o.MaxOpenConns, "database.max-open-conns", o.MaxOpenConns, "Maximum number of open connections.")
	fs.IntVar(&o.MaxIdleConns, "database.max-idle-conns", o.MaxIdleConns, "Maximum number of idle connections.")
	fs.DurationVar(&o.ConnMaxLifetime, "database.conn-max-lifetime", o.ConnMaxLifetime, "Maximum lifetime of a connection.")
}
