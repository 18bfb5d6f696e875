package utils

import (
	"errors"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"vibeconnect/errs"
)

// RegisterValidators installs custom binding rules on gin's validator engine.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("unexpected validator engine")
	}
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
}

// BindJSON decodes the request body and converts binding failures into InvalidInput
// errors naming the offending field.
func BindJSON(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindJSON(obj); err != nil {
		return bindError(err)
	}
	return nil
}

func bindError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return errs.InvalidInput("malformed request body")
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required", "notblank":
		return errs.InvalidInput("%s is required", fe.Field())
	case "max":
		return errs.InvalidInput("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return errs.InvalidInput("%s is invalid", fe.Field())
	}
}
