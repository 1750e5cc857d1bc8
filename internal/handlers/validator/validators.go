package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

type ValidationRule struct {
	Rule func(v *validator.Validate)
}

// Validator holds a go-playground validator with this service's custom tags.
type Validator struct {
	validator *validator.Validate
}

func NewValidator(rules ...ValidationRule) *Validator {
	v := &Validator{validator: validator.New()}
	v.Register(rules...)
	return v
}

func (v *Validator) Register(rules ...ValidationRule) {
	for _, r := range rules {
		r.Rule(v.validator)
	}
}

// Struct validates s and flattens field errors into one readable error.
func (v *Validator) Struct(s any) error {
	err := v.validator.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s: invalid value %v (%s)", strings.ToLower(fe.Field()), fe.Value(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
