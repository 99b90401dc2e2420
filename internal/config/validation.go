package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/routefs/routefs/pkg/errors"
	"github.com/routefs/routefs/pkg/utils"
)

// validate is the singleton validator instance
var validate = validator.New()

// Validate checks struct tags first, then the rules tags cannot express.
func (c *Configuration) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	return c.validateCustomRules()
}

func (c *Configuration) validateCustomRules() error {
	if _, err := utils.ParseLogLevel(c.Global.LogLevel); err != nil {
		return validationError("global.log_level", err.Error())
	}

	if c.Metrics.Enabled && c.Metrics.Port == 0 {
		return validationError("metrics.port", "port must be set when metrics are enabled")
	}

	switch c.Source.Type {
	case SourceS3:
		if c.Source.S3.Bucket == "" {
			return validationError("source.s3.bucket", "bucket is required for an s3 source")
		}
		if (c.Source.S3.AccessKeyID == "") != (c.Source.S3.SecretAccessKey == "") {
			return validationError("source.s3", "access_key_id and secret_access_key must be set together")
		}
	case SourceStatic:
		for path := range c.Source.Static {
			if !strings.HasPrefix(path, "/") || path == "/" {
				return validationError("source.static", fmt.Sprintf("invalid file path %q", path))
			}
		}
	}

	return nil
}

// formatValidationError reports the first failed tag with its field.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok && len(validationErrs) > 0 {
		e := validationErrs[0]
		return validationError(e.Namespace(),
			fmt.Sprintf("validation failed on '%s' tag (value: %v)", e.Tag(), e.Value())).
			WithCause(err)
	}
	return errors.Wrap(err, errors.ErrCodeConfigValidation, "invalid configuration").
		WithComponent("config")
}

func validationError(field, message string) *errors.Error {
	return errors.NewError(errors.ErrCodeConfigValidation, field+": "+message).
		WithComponent("config").
		WithContext("field", field)
}
