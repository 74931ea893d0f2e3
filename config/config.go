// Package config defines the runtime configuration for asyncnet and
// provides helpers for parsing port specifications and validating the
// result.
package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"asyncnet/internal/errors"
)

// Config holds every tuneable for the transport and the CLI modes.
type Config struct {
	// ── Transport ────────────────────────────────────────────────────
	BindAddress           string        `toml:"bind_address" validate:"required,ip"`
	ReadBufferSize        int           `toml:"read_buffer_size" validate:"min=1"`
	WriteBufferSize       int           `toml:"write_buffer_size" validate:"min=1"`
	ReceiveBufferCapacity int           `toml:"receive_buffer_capacity" validate:"min=0"`
	WorkerIdleTimeout     time.Duration `toml:"worker_idle_timeout" validate:"min=0"`
	ReusePort             bool          `toml:"reuse_port"`
	KeepAlive             time.Duration `toml:"keep_alive" validate:"min=0"`

	// ── Connection ───────────────────────────────────────────────────
	Host      string        `toml:"host"`
	Port      int           `toml:"port" validate:"min=0,max=65535"`       // connect destination
	LocalPort int           `toml:"local_port" validate:"min=0,max=65535"` // -p: listen port
	Listen    bool          `toml:"listen"`
	NoDNS     bool          `toml:"no_dns"`
	Timeout   time.Duration `toml:"timeout" validate:"min=0"`
	Retries   int           `toml:"retries" validate:"min=0"`

	// ── Output ───────────────────────────────────────────────────────
	Print   bool `toml:"print"` // listen mode prints instead of echoing
	Verbose int  `toml:"verbose" validate:"min=0,max=3"`

	File string `toml:"-"` // path of the config file that was loaded, if any
}

// Default returns a Config populated from defaults.go.
func Default() *Config {
	return &Config{
		BindAddress:           DefaultBindAddress,
		ReadBufferSize:        DefaultBufferSize,
		WriteBufferSize:       DefaultBufferSize,
		ReceiveBufferCapacity: DefaultBufferSize,
		WorkerIdleTimeout:     DefaultWorkerIdleTimeout,
		Timeout:               DefaultConnTimeout,
		Verbose:               1,
	}
}

// ── Port helpers ─────────────────────────────────────────────────────

// ParsePort accepts a decimal port number in 0–65535.
func ParsePort(spec string) (int, error) {
	port, err := strconv.Atoi(spec)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", spec)
	}
	if port < MinPort || port > MaxPort {
		return 0, fmt.Errorf("port %d out of range %d-%d", port, MinPort, MaxPort)
	}
	return port, nil
}

// ── Validation ───────────────────────────────────────────────────────

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their config-file names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("toml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks field ranges and that the configuration is
// internally consistent.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fieldError(verrs[0])
		}
		return err
	}

	if c.Listen {
		if c.Host != "" {
			return &errors.ConfigError{
				Field:   "host",
				Value:   c.Host,
				Message: "listen mode binds to bind_address, not a host",
				Hint:    "use --bind to change the listen address",
			}
		}
		return nil
	}

	if c.Host == "" {
		return &errors.ConfigError{
			Field:   "host",
			Message: "hostname is required in connect mode",
			Hint:    "asyncnet <host> <port>, or -l -p <port> to listen",
		}
	}
	if c.Port == 0 {
		return &errors.ConfigError{
			Field:   "port",
			Message: "destination port is required",
		}
	}
	return nil
}

func fieldError(fe validator.FieldError) error {
	ce := &errors.ConfigError{Field: fe.Field(), Value: fe.Value()}
	switch fe.Tag() {
	case "min":
		ce.Message = "must be at least " + fe.Param()
	case "max":
		ce.Message = "must be at most " + fe.Param()
	case "required":
		ce.Message = "is required"
		ce.Value = nil
	case "ip":
		ce.Message = "must be a numeric IP address"
		ce.Hint = "e.g. 127.0.0.1 or ::1"
	default:
		ce.Message = "failed " + fe.Tag() + " check"
	}
	if fe.Field() == "port" || fe.Field() == "local_port" {
		ce.Hint = fmt.Sprintf("use a port between %d and %d", MinPort, MaxPort)
	}
	return ce
}
