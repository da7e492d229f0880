package utils

import (
	"regexp"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	pincodePattern = regexp.MustCompile(`^[1-9][0-9]{5}$`)
	phonePattern   = regexp.MustCompile(`^[6-9][0-9]{9}$`)

	registerOnce sync.Once
)

// IsValidPincode reports whether s is a six-digit postal code
func IsValidPincode(s string) bool {
	return pincodePattern.MatchString(s)
}

// IsValidPhone reports whether s is a ten-digit mobile number
func IsValidPhone(s string) bool {
	return phonePattern.MatchString(s)
}

// RegisterValidators adds the "pincode" and "phone" binding rules to gin's
// validator. Safe to call more than once.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("pincode", func(fl validator.FieldLevel) bool {
			return IsValidPincode(fl.Field().String())
		})
		_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
			return IsValidPhone(fl.Field().String())
		})
	})
}
