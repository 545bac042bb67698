package service

import (
	"errors"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var phonePattern = regexp.MustCompile(`^\(\d{2}\)\s\d{4,5}-\d{4}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("form"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("phone_br", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	return v
}

// FormError carries one message per invalid form field, keyed by the field's
// form name.
type FormError struct {
	Fields map[string]string
	cause  error
}

func (e *FormError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "invalid form: " + strings.Join(keys, ", ")
}

// Unwrap returns the failure behind the field messages, if any.
func (e *FormError) Unwrap() error {
	return e.cause
}

// Messages lists the field messages in a stable order.
func (e *FormError) Messages() []string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = e.Fields[k]
	}
	return out
}

func fieldError(field, message string) *FormError {
	return &FormError{Fields: map[string]string{field: message}}
}

// AsFormError unwraps a *FormError from err.
func AsFormError(err error) (*FormError, bool) {
	var fe *FormError
	ok := errors.As(err, &fe)
	return fe, ok
}

// validateForm checks the struct tags of form and translates failures into a
// FormError using the "msg" tag of each field.
func validateForm(form interface{}) error {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	t := reflect.TypeOf(form)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	fe := &FormError{Fields: make(map[string]string)}
	for _, fieldErr := range verrs {
		if _, seen := fe.Fields[fieldErr.Field()]; seen {
			continue
		}
		message := "Valor inválido"
		if sf, ok := t.FieldByName(fieldErr.StructField()); ok {
			if msg := sf.Tag.Get("msg"); msg != "" {
				message = msg
			}
		}
		fe.Fields[fieldErr.Field()] = message
	}
	return fe
}
