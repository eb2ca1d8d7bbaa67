package options

import (
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*GrpcOptions)(nil)

// GrpcOptions configures the gRPC connection to the robot executor gateway.
type GrpcOptions struct {
	// Addr is the executor gateway address.
	Addr string `json:"addr" mapstructure:"addr"`

	// Timeout is applied to every call that carries no deadline.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// Insecure disables transport security.
	Insecure bool `json:"insecure" mapstructure:"insecure"`
}

// NewGrpcOptions returns the default executor client options.
func NewGrpcOptions() *GrpcOptions {
	return &GrpcOptions{
		Addr:     "127.0.0.1:8091",
		Timeout:  10 * time.Second,
		Insecure: true,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *GrpcOptions) Validate() []error {
	var errors []error

	if err := ValidateAddress(o.Addr); err != nil {
		errors = append(errors, err)
	}

	return errors
}

// AddFlags adds flags for the executor client to the specified FlagSet.
func (o *GrpcOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Addr, "executor.addr", o.Addr, "Address of the robot executor gRPC gateway.")
	fs.DurationVar(&o.Timeout, "executor.timeout", o.Timeout, "Default deadline for executor calls.")
	fs.BoolVar(&o.Insecure, "executor.insecure", o.Insecure, "Connect to the executor without TLS.")
}
