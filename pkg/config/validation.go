package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/marmos91/dittovfs/pkg/mount"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Log level normalization is handled in ApplyDefaults; validation accepts
// both cases.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

// validateCustomRules checks what struct tags cannot express: unique mount
// points, known backends, parseable quotas and owner references.
func validateCustomRules(cfg *Config) error {
	known := make(map[string]bool, len(Backends))
	for _, name := range Backends {
		known[name] = true
	}

	points := make(map[string]int, len(cfg.Mounts))
	for i, m := range cfg.Mounts {
		mp := mount.FormatPath(m.MountPoint)
		if prev, dup := points[mp]; dup {
			return fmt.Errorf("mounts[%d]: mount point %q duplicates mounts[%d]", i, mp, prev)
		}
		points[mp] = i

		if !known[strings.ToLower(m.Backend)] {
			return fmt.Errorf("mounts[%d]: unknown backend %q (known: %s)", i, m.Backend, strings.Join(Backends, ", "))
		}
		if _, err := ParseQuota(m.Quota); err != nil {
			return fmt.Errorf("mounts[%d]: %w", i, err)
		}
	}

	for i, m := range cfg.Mounts {
		if m.Owner == nil {
			continue
		}
		owner := mount.FormatPath(m.Owner.MountPoint)
		if _, ok := points[owner]; !ok {
			return fmt.Errorf("mounts[%d]: owner mount %q is not configured", i, owner)
		}
		if owner == mount.FormatPath(m.MountPoint) {
			return fmt.Errorf("mounts[%d]: a mount cannot own itself", i)
		}
	}

	return nil
}

// ParseQuota converts a human size to bytes. Empty and "unlimited" return
// -1 (no quota).
func ParseQuota(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "unlimited") {
		return -1, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid quota %q: %w", s, err)
	}
	if n > 1<<62 {
		return 0, fmt.Errorf("invalid quota %q: too large", s)
	}
	return int64(n), nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
