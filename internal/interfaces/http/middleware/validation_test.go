package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/casaviva/backoffice/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type paymentInput struct {
	Source  string          `json:"source" binding:"required,oneof=down_payment bank_credit"`
	Amount  decimal.Decimal `json:"amount" binding:"required,gt=0"`
	Penalty decimal.Decimal `json:"penalty" binding:"gte=0"`
}

func bindRouter() *gin.Engine {
	SetupValidator()
	router := gin.New()
	router.Use(RequestID())
	router.POST("/test", func(c *gin.Context) {
		var in paymentInput
		if err := c.ShouldBindJSON(&in); err != nil {
			HandleBindError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"amount": in.Amount.String()})
	})
	return router
}

func postJSON(router http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderRequestID, "req-bind")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSetupValidator(t *testing.T) {
	SetupValidator()

	v, ok := binding.Validator.Engine().(*validator.Validate)
	assert.True(t, ok)
	assert.NotNil(t, v)
}

func TestHandleBindError_ValidationRules(t *testing.T) {
	router := bindRouter()

	w := postJSON(router, `{"source":"lottery","amount":"0","penalty":"-5"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeRequestValidation, resp.Error.Code)
	assert.Equal(t, "req-bind", resp.Error.RequestID)

	fields := make(map[string]string)
	for _, f := range resp.Error.Fields {
		fields[f.Field] = f.Message
	}
	assert.Equal(t, "Must be one of: down_payment bank_credit", fields["source"])
	assert.Equal(t, "This field is required", fields["amount"])
	assert.Equal(t, "Must be greater than or equal to 0", fields["penalty"])
}

func TestHandleBindError_DecimalAmounts(t *testing.T) {
	router := bindRouter()

	t.Run("accepts numbers and strings", func(t *testing.T) {
		w := postJSON(router, `{"source":"down_payment","amount":1500000.50}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"1500000.5"`)

		w = postJSON(router, `{"source":"down_payment","amount":"2500000"}`)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("negative amount fails gt", func(t *testing.T) {
		w := postJSON(router, `{"source":"down_payment","amount":"-1"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Must be greater than 0")
	})
}

func TestHandleBindError_MalformedBody(t *testing.T) {
	router := bindRouter()

	w := postJSON(router, `{"source":`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeInvalidJSON, resp.Error.Code)
	assert.Empty(t, resp.Error.Fields)
}

func TestFieldMessage(t *testing.T) {
	type input struct {
		Required string `validate:"required"`
		Email    string `validate:"omitempty,email"`
		Min      string `validate:"min=5"`
		UUID     string `validate:"omitempty,uuid"`
		Count    int    `validate:"max=3"`
		Pattern  string `validate:"omitempty,alpha"`
	}

	v := validator.New()
	err := v.Struct(input{Email: "not-an-email", Min: "ab", UUID: "nope", Count: 9, Pattern: "a1"})
	require.Error(t, err)

	messages := make(map[string]string)
	for _, e := range err.(validator.ValidationErrors) {
		messages[e.Field()] = fieldMessage(e)
	}
	assert.Equal(t, "This field is required", messages["Required"])
	assert.Equal(t, "Invalid email format", messages["Email"])
	assert.Equal(t, "Must be at least 5 characters", messages["Min"])
	assert.Equal(t, "Invalid UUID format", messages["UUID"])
	assert.Equal(t, "Must be at most 3", messages["Count"])
	assert.Equal(t, "Invalid value", messages["Pattern"])
}
