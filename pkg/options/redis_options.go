package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*RedisOptions)(nil)

// RedisOptions configures the Redis backed deferred job scheduler.
// When Addr is empty jobs are kept in process memory.
type RedisOptions struct {
	Addr     string `json:"addr" mapstructure:"addr"`
	Password string `json:"password" mapstructure:"password"`
	DB       int    `json:"db" mapstructure:"db"`

	// KeyPrefix namespaces every key written by robofleet.
	KeyPrefix string `json:"key-prefix" mapstructure:"key-prefix"`

	// PollInterval is how often due jobs are promoted.
	PollInterval time.Duration `json:"poll-interval" mapstructure:"poll-interval"`
}

func NewRedisOptions() *RedisOptions {
	return &RedisOptions{
		KeyPrefix:    "robofleet",
		PollInterval: time.Second,
	}
}

// Enabled reports whether a Redis server is configured.
func (o *RedisOptions) Enabled() bool {
	return o != nil && o.Addr != ""
}

func (o *RedisOptions) Validate() []error {
	var errs []error

	if o.Enabled() {
		if err := ValidateAddress(o.Addr); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if o.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("redis: poll interval must be positive"))
	}

	return errs
}

func (o *RedisOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Addr, "redis.addr", o.Addr, "Redis address for deferred jobs (empty keeps jobs in memory).")
	fs.StringVar(&o.Password, "redis.password", o.Password, "Redis password.")
	fs.IntVar(&o.DB, "redis.db", o.DB, "Redis database index.")
	fs.StringVar(&o.KeyPrefix, "redis.key-prefix", o.KeyPrefix, "Prefix for every Redis key.")
	fs.DurationVar(&o.PollInterval, "redis.poll-interval", o.PollInterval, "How often due jobs are promoted.")
}
