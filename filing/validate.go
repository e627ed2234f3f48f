package filing

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var fieldValidator = newFieldValidator()

func newFieldValidator() *validator.Validate {
	v := validator.New()
	// Report the wire (json) name so messages match the operator's field.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateFields runs the struct-tag rules (required codes, lengths, enums).
func ValidateFields(v any) ValidationErrors {
	err := fieldValidator.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return ValidationErrors{{Message: err.Error()}}
	}
	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, &ValidationError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Este campo es obligatorio."
	case "max":
		return fmt.Sprintf("Máximo %s caracteres.", fe.Param())
	case "len":
		return fmt.Sprintf("Debe tener %s caracteres.", fe.Param())
	case "oneof":
		return fmt.Sprintf("Valor inválido, opciones: %s.", fe.Param())
	}
	return fmt.Sprintf("Valor inválido (%s).", fe.Tag())
}
