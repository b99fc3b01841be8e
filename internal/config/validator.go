package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators registers the config-specific validation rules.
func RegisterCustomValidators(v *validator.Validate) error {
	// mpd_host: hostname, IP address, absolute socket path or abstract socket
	if err := v.RegisterValidation("mpd_host", validateMPDHost); err != nil {
		return fmt.Errorf("failed to register mpd_host validator: %w", err)
	}
	return nil
}

func validateMPDHost(fl validator.FieldLevel) bool {
	host := fl.Field().String()

	if strings.HasPrefix(host, "@") {
		return len(host) > 1
	}
	if strings.HasPrefix(host, "/") {
		return filepath.IsAbs(host)
	}
	if net.ParseIP(host) != nil {
		return true
	}
	return host != "" && !strings.ContainsAny(host, " /:@")
}

// Validate validates the Config using struct tags and cross-field rules.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}
	if err := v.Var(c.Host, "mpd_host"); err != nil {
		return fmt.Errorf("host: %q is not a host name, IP address or socket path", c.Host)
	}

	return c.validateUniqueOutputNames()
}

// validateUniqueOutputNames ensures served outputs can be addressed by name
func (c *Config) validateUniqueOutputNames() error {
	seen := make(map[string]bool, len(c.Serve.Outputs))
	for _, o := range c.Serve.Outputs {
		if seen[o.Name] {
			return fmt.Errorf("serve.outputs: duplicate output name %q", o.Name)
		}
		seen[o.Name] = true
	}
	return nil
}

// formatValidationErrors turns validator errors into one readable error
func formatValidationErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value()))
		case "min", "max":
			msgs = append(msgs, fmt.Sprintf("%s must be %s %s, got %v", field, map[string]string{"min": ">=", "max": "<="}[fe.Tag()], fe.Param(), fe.Value()))
		case "hostname_port":
			msgs = append(msgs, fmt.Sprintf("%s must be host:port, got %q", field, fe.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", field, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
