package isolation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectField(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value string
		want  []string
	}{
		{"field name hit", "gender", "x", []string{"sex_gender"}},
		{"snake_case field name", "applicant_age", "41", []string{"age"}},
		{"date of birth field", "date_of_birth", "1985-02-14", []string{"age"}},
		{"value hit on neutral name", "notes", "applicant is Hispanic", []string{"race_ethnicity"}},
		{"religion value", "remarks", "attends a Catholic parish", []string{"religion"}},
		{"marital value", "summary", "recently divorced", []string{"marital_status"}},
		{"public assistance value", "comment", "receives food stamps monthly", []string{"public_assistance"}},
		{"multiple categories", "profile", "married female applicant", []string{"sex_gender", "marital_status"}},
		{"clean numeric field", "income", "85000", nil},
		{"clean employer field", "employer", "Northline Freight", nil},
		{"mortgage term is not age", "mortgage_term", "30 years", nil},
		{"germany is not man", "notes", "employer based in Germany", nil},
		{"female does not double as male", "x", "female", []string{"sex_gender"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detectField(tt.field, tt.value))
		})
	}
}

func TestDetectText(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"clean summary", "Income 85000, amount 320000, moved to review.", nil},
		{"single category", "The applicant is pregnant.", []string{"pregnancy"}},
		{
			"multiple categories sorted",
			"A married Muslim woman applied for a loan.",
			[]string{"marital_status", "religion", "sex_gender"},
		},
		{"name-only categories ignore text", "nationality was discussed", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detectText(tt.text))
		})
	}
}
