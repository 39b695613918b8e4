package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate
)

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("toml"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("bind_address", func(fl validator.FieldLevel) bool {
			_, _, err := net.SplitHostPort(fl.Field().String())
			return err == nil
		})
		validateInst = v
	})
	return validateInst
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := validatorInstance().Struct(c); err != nil {
		return convertValidationError(err)
	}
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateIteration(); err != nil {
		return err
	}
	if err := c.validateScheduler(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
		return fmt.Errorf("paths.api_bind must be host:port: %w", err)
	}
	return nil
}

func (c *Config) validateIteration() error {
	if c.Iteration.Step == "exec" && c.Iteration.ExecCommand == "" {
		return errors.New("iteration.exec_command must be set when iteration.step is \"exec\"")
	}
	return nil
}

func (c *Config) validateScheduler() error {
	if c.Scheduler.BaseURL == "" {
		return nil
	}
	parsed, err := url.Parse(c.Scheduler.BaseURL)
	if err != nil {
		return fmt.Errorf("scheduler.base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("scheduler.base_url must use http or https, got %q", parsed.Scheme)
	}
	return nil
}

func convertValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return fmt.Errorf("validate config: %w", err)
	}
	fe := validationErrs[0]
	field := configFieldPath(fe.Namespace())
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s must be set", field)
	case "oneof":
		return fmt.Errorf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case "url":
		return fmt.Errorf("%s must be a valid URL, got %q", field, fe.Value())
	case "gt":
		return fmt.Errorf("%s must be > %s", field, fe.Param())
	case "gte":
		return fmt.Errorf("%s must be >= %s", field, fe.Param())
	case "lte":
		return fmt.Errorf("%s must be <= %s", field, fe.Param())
	default:
		return fmt.Errorf("%s failed %q validation", field, fe.Tag())
	}
}

// configFieldPath turns "Config.iteration.mode" into "iteration.mode".
func configFieldPath(namespace string) string {
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return namespace
}
