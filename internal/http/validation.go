package http

import (
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"storefront-auth/internal/domain"
)

var registerOnce sync.Once

// RegisterValidators agrega las reglas "password" y "role" al validador de gin.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(jsonFieldName)
		_ = v.RegisterValidation("password", validatePassword)
		_ = v.RegisterValidation("role", validateRole)
	})
}

// validatePassword exige 8 a 72 bytes con mayúscula, minúscula y dígito.
// 72 es el máximo que bcrypt considera.
func validatePassword(fl validator.FieldLevel) bool {
	pw := fl.Field().String()
	if len(pw) < 8 || len(pw) > 72 {
		return false
	}
	var upper, lower, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return upper && lower && digit
}

// validateRole acepta los roles que se pueden elegir al registrarse.
func validateRole(fl validator.FieldLevel) bool {
	role, ok := domain.ParseRole(fl.Field().String())
	return ok && role != domain.RoleAdmin
}

// jsonFieldName hace que los errores usen el nombre del campo en el JSON.
func jsonFieldName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}
