package validator

import (
	"math"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var taskIDRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,254}$`)

// bboxValidator accepts west, south, east, north with a positive extent.
func bboxValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().([]float64)
	if !ok || len(val) != 4 {
		return false
	}

	for _, v := range val {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}

	return val[0] < val[2] && val[1] < val[3]
}

func taskIDValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}

	return taskIDRegex.MatchString(val)
}

func jobStatusValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}

	switch val {
	case "PENDING", "STARTED", "RETRY", "SUCCESS", "FAILURE", "ERROR":
		return true
	default:
		return false
	}
}
