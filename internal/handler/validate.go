package handler

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/korrekturpilot/internal/model"
)

func validateUserRole(fl validator.FieldLevel) bool {
	switch model.UserRole(fl.Field().String()) {
	case model.UserRoleTeacher, model.UserRoleAdmin:
		return true
	}
	return false
}

// newValidator returns a validator that reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("user_role", validateUserRole)
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
