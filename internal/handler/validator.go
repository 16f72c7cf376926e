package handler

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var seatNumberRe = regexp.MustCompile(`^[A-Za-z0-9-]{1,8}$`)

// seatNumber accepts the labels printed on bus seats: up to eight letters,
// digits or dashes.
var seatNumber validator.Func = func(fl validator.FieldLevel) bool {
	return seatNumberRe.MatchString(fl.Field().String())
}

// Validator adapts go-playground/validator to echo.Validator.
type Validator struct {
	v *validator.Validate
}

// NewValidator registers the custom tags used by request bodies.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("seatnum", seatNumber); err != nil {
		panic(fmt.Sprintf("register seatnum validation: %v", err))
	}
	return &Validator{v: v}
}

func (cv *Validator) Validate(i any) error {
	return cv.v.Struct(i)
}
