package address

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Messages reported for violated constraints.
const (
	MsgRequired      = "Missing data for required field."
	MsgInvalidStreet = "Invalid addressLine1"
	MsgInvalidPostal = "Invalid postal code format"
)

var postalCodePattern = regexp.MustCompile(`^\d{5}(?:-\d{4})?$`)

// validate is safe for concurrent use and caches struct metadata.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON names so errors line up with the wire format
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// A street line needs at least a number and a street name
	if err := v.RegisterValidation("street", func(fl validator.FieldLevel) bool {
		return len(strings.Fields(fl.Field().String())) >= 2
	}); err != nil {
		panic(err)
	}

	if err := v.RegisterValidation("postalcode", func(fl validator.FieldLevel) bool {
		return ValidPostalCode(fl.Field().String())
	}); err != nil {
		panic(err)
	}

	return v
}

// ValidPostalCode reports whether code is a 5-digit ZIP or a ZIP+4.
func ValidPostalCode(code string) bool {
	return postalCodePattern.MatchString(code)
}

// Validate checks the required fields and formats of an address. It returns
// nil or a *ValidationError enumerating every violated field.
func Validate(a Address) error {
	err := validate.Struct(a)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	verr := &ValidationError{Op: "address.validate"}
	for _, fe := range fieldErrs {
		verr.Fields = append(verr.Fields, FieldError{
			Field:   fe.Field(),
			Message: messageFor(fe.Tag()),
		})
	}
	return verr
}

func messageFor(tag string) string {
	switch tag {
	case "required":
		return MsgRequired
	case "street":
		return MsgInvalidStreet
	case "postalcode":
		return MsgInvalidPostal
	default:
		return "Invalid value"
	}
}
