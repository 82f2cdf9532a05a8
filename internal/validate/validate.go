/**
 * @description
 * Pure, synchronous field validation for the checkout flow. Built on
 * go-playground/validator with custom rules for the Brazilian identity
 * document (CPF), phone numbers and postal codes (CEP). Validation never
 * performs I/O and never panics; failures come back as a field -> message
 * map keyed by the struct's json tag.
 *
 * The orchestrator runs these checks before every transition that would
 * otherwise contact a collaborator, so invalid input never leaves the
 * process.
 */
package validate

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// Registration errors only occur for blank tags or nil funcs.
	_ = v.RegisterValidation("cpf", func(fl validator.FieldLevel) bool {
		return ValidCPF(fl.Field().String())
	})
	_ = v.RegisterValidation("cep", func(fl validator.FieldLevel) bool {
		return len(digitsOf(fl.Field().String())) == 8
	})
	_ = v.RegisterValidation("brphone", func(fl validator.FieldLevel) bool {
		return len(digitsOf(fl.Field().String())) >= 10
	})

	return v
}

// Struct validates any tagged value record and returns a field -> message
// map. An empty map means the record is valid.
func Struct(s interface{}) map[string]string {
	errs := make(map[string]string)
	err := validate.Struct(s)
	if err == nil {
		return errs
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		// InvalidValidationError only happens for non-struct input.
		errs["_"] = "invalid input"
		return errs
	}

	for _, fe := range verrs {
		field := fe.Field()
		if field == "" {
			field = strings.ToLower(fe.StructField())
		}
		errs[field] = messageFor(fe)
	}
	return errs
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "min":
		if fe.Kind() == reflect.String {
			return "must be at least " + fe.Param() + " characters"
		}
		return "value too small"
	case "cpf":
		return "must be a valid CPF"
	case "cep":
		return "must be a valid CEP (8 digits)"
	case "brphone":
		return "must be a valid phone number with area code"
	case "eq":
		if fe.Param() == "true" {
			return "you must accept the terms of service"
		}
		return "invalid value"
	default:
		return "invalid value"
	}
}

// ValidCPF runs the two-pass mod-11 checksum over an 11-digit CPF. Known
// all-same-digit sequences pass the checksum arithmetically but are issued to
// nobody, so they are rejected outright.
func ValidCPF(raw string) bool {
	digits := digitsOf(raw)
	if len(digits) != 11 {
		return false
	}

	same := true
	for i := 1; i < 11; i++ {
		if digits[i] != digits[0] {
			same = false
			break
		}
	}
	if same {
		return false
	}

	if checkDigit(digits[:9], 10) != digits[9] {
		return false
	}
	return checkDigit(digits[:10], 11) == digits[10]
}

// checkDigit computes one mod-11 verification digit with descending weights
// starting at firstWeight.
func checkDigit(digits []int, firstWeight int) int {
	sum := 0
	for i, d := range digits {
		sum += d * (firstWeight - i)
	}
	rest := (sum * 10) % 11
	if rest == 10 {
		return 0
	}
	return rest
}

func digitsOf(s string) []int {
	out := make([]int, 0, len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			out = append(out, int(r-'0'))
		}
	}
	return out
}
