package middleware

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/casaviva/backoffice/internal/infrastructure/logger"
	"github.com/casaviva/backoffice/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// SetupValidator configures gin's validator: field names in errors follow
// the JSON tags, and decimal amounts validate as numbers so that rules like
// gt=0 apply to them.
func SetupValidator() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			name, _, _ = strings.Cut(fld.Tag.Get("form"), ",")
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
}

// HandleBindError answers a request whose body or query could not be
// bound. Rule failures list the offending fields; anything else is a
// malformed body.
func HandleBindError(c *gin.Context, err error) {
	requestID := c.GetString(logger.GinRequestIDKey)

	var rules validator.ValidationErrors
	if !errors.As(err, &rules) {
		c.AbortWithStatusJSON(http.StatusBadRequest, dto.Fail(
			dto.ErrCodeInvalidJSON, "Malformed request body: "+err.Error(), requestID))
		return
	}

	details := make([]dto.ValidationDetail, 0, len(rules))
	for _, fe := range rules {
		details = append(details, dto.ValidationDetail{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, dto.Invalid(requestID, details))
}

// ruleMessages maps validator tags to messages. Rules that take a
// parameter get it appended.
var ruleMessages = map[string]string{
	"required": "This field is required",
	"email":    "Invalid email format",
	"uuid":     "Invalid UUID format",
	"dive":     "Invalid entry",
	"oneof":    "Must be one of: ",
	"gte":      "Must be greater than or equal to ",
	"gt":       "Must be greater than ",
	"lte":      "Must be less than or equal to ",
	"min":      "Must be at least ",
	"max":      "Must be at most ",
}

func fieldMessage(fe validator.FieldError) string {
	msg, ok := ruleMessages[fe.Tag()]
	if !ok {
		return "Invalid value"
	}
	if fe.Param() == "" {
		return msg
	}
	msg += fe.Param()
	if (fe.Tag() == "min" || fe.Tag() == "max") && fe.Kind() == reflect.String {
		msg += " characters"
	}
	return msg
}
