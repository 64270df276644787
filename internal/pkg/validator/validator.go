// Package validator provides a thin wrapper around the go-playground/validator
// library, enabling declarative struct validation with standardized error
// formatting.
//
// It supports validating struct fields using tags (e.g. `validate:"required"`)
// and returns descriptive error messages when validation rules are violated.
// Besides the built-in tags it registers "solana_pubkey", which accepts base58
// strings decoding to a 32-byte Solana public key. The package is initialized
// automatically and safe to use directly.
package validator

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	gvalidator "github.com/go-playground/validator/v10"
)

// ErrValidationFailed is returned as the first error in a multi-error chain
// when validation fails, so callers can detect validation failures with
// errors.Is even when multiple field errors are returned.
var ErrValidationFailed = errors.New("struct validation failed")

// validator is a singleton instance of the go-playground validator,
// initialized on package load.
var validator *gvalidator.Validate

// errStringFormat describes one failed field.
//
// Example: "'plan.Mint': value 'abc' does not meet the requirements for the 'solana_pubkey' validation"
const errStringFormat = "'%s': value '%v' does not meet the requirements for the '%s' validation"

// init builds the singleton validator with required struct validation enabled
// and registers the custom tags.
func init() {
	validator = gvalidator.New(gvalidator.WithRequiredStructEnabled())
	if err := validator.RegisterValidation("solana_pubkey", isSolanaPubkey); err != nil {
		panic(err)
	}
}

// isSolanaPubkey reports whether the field is a base58 string decoding to a
// 32-byte public key.
func isSolanaPubkey(fl gvalidator.FieldLevel) bool {
	_, err := solana.PublicKeyFromBase58(fl.Field().String())
	return err == nil
}

// formatError turns validator.ValidationErrors into ErrValidationFailed
// joined with one message per field. Other errors pass through unchanged.
func formatError(err error) error {
	var validationErrors gvalidator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	errs := []error{ErrValidationFailed}
	for _, validationErr := range validationErrors {
		errs = append(errs, fmt.Errorf(errStringFormat,
			validationErr.Namespace(),
			validationErr.Value(),
			validationErr.Tag(),
		))
	}

	return errors.Join(errs...)
}

// Validate checks v against its `validate` struct tags.
//
// It returns nil if all fields pass validation. Otherwise, it returns a
// combined error that includes ErrValidationFailed and one formatted message
// per failed field, named by its namespace.
//
// Example usage:
//
//	if err := validator.Validate(plan); errors.Is(err, validator.ErrValidationFailed) {
//	    // reject the input
//	}
func Validate(v any) error {
	if err := validator.Struct(v); err != nil {
		return formatError(err)
	}

	return nil
}
