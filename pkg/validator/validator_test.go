package validator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type createBoardPayload struct {
	Name string `json:"name" validate:"required,min=2,max=64"`
	Slug string `json:"slug" validate:"required,slug"`
}

func TestValidateStructSuccess(t *testing.T) {
	err := ValidateStruct(&createBoardPayload{Name: "Feature Requests", Slug: "feature-requests"})
	require.NoError(t, err)
}

func TestValidateStructReportsJSONFieldNames(t *testing.T) {
	err := ValidateStruct(&createBoardPayload{Slug: "ok-slug"})
	require.Error(t, err)

	ve, ok := err.(ValidationErrors)
	require.True(t, ok)
	require.Len(t, ve, 1)
	require.Equal(t, "name", ve[0].Field)
	require.Equal(t, "required", ve[0].Tag)
}

func TestSlugRule(t *testing.T) {
	cases := map[string]bool{
		"feature-requests": true,
		"bugs":             true,
		"a1-b2":            true,
		"Feature":          false,
		"double--dash":     false,
		"-leading":         false,
		"trailing-":        false,
		"with space":       false,
		"":                 false,
	}

	for slug, valid := range cases {
		err := ValidateStruct(&createBoardPayload{Name: "Board", Slug: slug})
		if valid {
			require.NoError(t, err, "slug %q", slug)
		} else {
			require.Error(t, err, "slug %q", slug)
		}
	}
}

func TestValidationErrorsMessage(t *testing.T) {
	ve := ValidationErrors{
		{Field: "name", Tag: "required"},
		{Field: "slug", Tag: "max", Param: "64"},
	}
	require.Equal(t, "name failed on required; slug failed on max=64", ve.Error())
}
