package executor

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Profile is a named set of policy overrides loaded from YAML.
type Profile struct {
	Name         string `yaml:"name" validate:"required"`
	Timeout      string `yaml:"timeout" validate:"omitempty,duration"`
	MaxOutput    int    `yaml:"max_output" validate:"gte=0"`
	AutoImport   *bool  `yaml:"auto_import"`
	Unrestricted bool   `yaml:"unrestricted"`
}

var profileValidator = newProfileValidator()

func newProfileValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		d, err := time.ParseDuration(fl.Field().String())
		return err == nil && d >= 0
	})
	return v
}

// LoadProfile reads and validates a profile from a YAML file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile %s: %w", path, err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing profile %s: %w", path, err)
	}
	if p.Name == "" {
		p.Name = trimExt(filepath.Base(path))
	}
	if err := profileValidator.Struct(&p); err != nil {
		return nil, fmt.Errorf("invalid profile %s: %w", path, err)
	}

	return &p, nil
}

// LoadNamedProfile resolves name to <dir>/<name>.yaml and loads it.
func LoadNamedProfile(dir, name string) (*Profile, error) {
	return LoadProfile(filepath.Join(dir, name+".yaml"))
}

// Apply returns base with the profile's overrides.
func (p *Profile) Apply(base Policy) Policy {
	if p.Timeout != "" {
		if d, err := time.ParseDuration(p.Timeout); err == nil {
			base.Timeout = d
		}
	}
	if p.MaxOutput > 0 {
		base.MaxOutput = p.MaxOutput
	}
	if p.AutoImport != nil {
		base.AutoImport = *p.AutoImport
	}
	if p.Unrestricted {
		base.Unrestricted = true
	}
	return base
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
