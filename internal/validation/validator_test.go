package validation_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/shelfmark/shelfmark-server/internal/errors"
	"github.com/shelfmark/shelfmark-server/internal/validation"
)

type testRequest struct {
	Email    string `json:"email" validate:"required,emailshape"`
	Password string `json:"password" validate:"required"`
	Title    string `json:"title,omitempty" validate:"required,max=10"`
	Year     int    `json:"year" validate:"gte=0"`
}

func validRequest() testRequest {
	return testRequest{Email: "reader@example.com", Password: "pw", Title: "Dune", Year: 1965}
}

func TestValidator_ValidateSuccess(t *testing.T) {
	assert.NoError(t, validation.New().Validate(validRequest()))
}

func TestValidator_ValidateErrors(t *testing.T) {
	v := validation.New()

	tests := []struct {
		name      string
		mutate    func(r *testRequest)
		wantField string
		wantMsg   string
	}{
		{name: "missing password", mutate: func(r *testRequest) { r.Password = "" }, wantField: "password", wantMsg: "is required"},
		{name: "email without at", mutate: func(r *testRequest) { r.Email = "reader.example.com" }, wantField: "email", wantMsg: "must be a valid email address"},
		{name: "email without dot after at", mutate: func(r *testRequest) { r.Email = "reader@example" }, wantField: "email", wantMsg: "must be a valid email address"},
		{name: "title too long", mutate: func(r *testRequest) { r.Title = strings.Repeat("x", 11) }, wantField: "title", wantMsg: "must not exceed 10 characters"},
		{name: "negative year", mutate: func(r *testRequest) { r.Year = -1 }, wantField: "year", wantMsg: "must be greater than or equal to 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)

			err := v.Validate(req)
			require.ErrorIs(t, err, domainerrors.ErrValidation)

			var domainErr *domainerrors.Error
			require.ErrorAs(t, err, &domainErr)
			assert.Equal(t, 400, domainErr.HTTPStatus())
			assert.Equal(t, tt.wantField+" "+tt.wantMsg, domainErr.Message)
			assert.Equal(t, map[string]string{tt.wantField: tt.wantMsg}, domainErr.Details)
		})
	}
}

func TestValidator_LooseEmailShape(t *testing.T) {
	v := validation.New()

	for _, email := range []string{"a@b.c", "Reader+tag@Example.co.uk", "weird name@host.tld"} {
		req := validRequest()
		req.Email = email
		assert.NoError(t, v.Validate(req), email)
	}
}

func TestValidator_MultipleFieldsSorted(t *testing.T) {
	err := validation.New().Validate(testRequest{Year: 1})

	var domainErr *domainerrors.Error
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "email is required; password is required; title is required", domainErr.Message)
}

func TestValidator_JSONFieldNames(t *testing.T) {
	req := validRequest()
	req.Email = ""

	err := validation.New().Validate(req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email")
	assert.NotContains(t, err.Error(), "Email")
}

func TestValidator_Var(t *testing.T) {
	v := validation.New()

	assert.NoError(t, v.Var("grade", 3, "gte=0,lte=5"))

	err := v.Var("grade", 7, "gte=0,lte=5")
	require.ErrorIs(t, err, domainerrors.ErrValidation)
	assert.Contains(t, err.Error(), "grade must be less than or equal to 5")
}
