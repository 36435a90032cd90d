package isolation

import (
	"regexp"
	"sort"
	"strings"
)

// detectionPattern flags content belonging to the isolated category. Field
// expressions match payload key names; value expressions match content.
// Either alone is a hit: a field named "ethnicity" is excluded whatever it
// holds, and a field holding "applicant is Hispanic" is excluded whatever
// it is named. Matching errs toward exclusion.
type detectionPattern struct {
	category string
	fields   *regexp.Regexp
	values   *regexp.Regexp
}

// The categories mirror the protected classes a lending platform must keep
// out of its decision path.
var detectionPatterns = []detectionPattern{
	{
		category: "sex_gender",
		fields:   regexp.MustCompile(`(?i)\b(gender|sex)\b`),
		values:   regexp.MustCompile(`(?i)\b(male|female|non-?binary|transgender|woman|man)\b`),
	},
	{
		category: "race_ethnicity",
		fields:   regexp.MustCompile(`(?i)\b(race|ethnicity|ethnic)\b`),
		values:   regexp.MustCompile(`(?i)\b(hispanic|latino|latina|african[- ]american|asian|caucasian|native american|pacific islander)\b`),
	},
	{
		category: "religion",
		fields:   regexp.MustCompile(`(?i)\breligio(n|us)\b`),
		values:   regexp.MustCompile(`(?i)\b(christian|muslim|jewish|hindu|buddhist|catholic|protestant|atheist)\b`),
	},
	{
		category: "national_origin",
		fields:   regexp.MustCompile(`(?i)\b(national[-_ ]origin|nationality|citizenship|country[-_ ]of[-_ ]birth|birth[-_ ]?country)\b`),
	},
	{
		category: "marital_status",
		fields:   regexp.MustCompile(`(?i)\bmarital\b`),
		values:   regexp.MustCompile(`(?i)\b(married|divorced|widowed|separated)\b`),
	},
	{
		category: "disability",
		fields:   regexp.MustCompile(`(?i)\bdisab(led|ility|ilities)\b`),
		values:   regexp.MustCompile(`(?i)\b(disabled|disability|wheelchair)\b`),
	},
	{
		category: "age",
		fields:   regexp.MustCompile(`(?i)\b(age|date[-_ ]of[-_ ]birth|dob|birth[-_ ]?date)\b`),
	},
	{
		category: "public_assistance",
		fields:   regexp.MustCompile(`(?i)\b(public[-_ ]assistance|welfare|food[-_ ]stamps)\b`),
		values:   regexp.MustCompile(`(?i)\b(food stamps|snap benefits|public assistance|welfare)\b`),
	},
	{
		category: "pregnancy",
		fields:   regexp.MustCompile(`(?i)\bpregnan(t|cy)\b`),
		values:   regexp.MustCompile(`(?i)\b(pregnant|pregnancy|maternity leave)\b`),
	},
}

// detectField returns the categories a payload field trips, by name or by
// value. Underscores in the name are treated as separators so snake_case
// keys like "applicant_age" match. Empty when the field is clean.
func detectField(name, value string) []string {
	name = strings.ReplaceAll(name, "_", " ")
	var cats []string
	for _, p := range detectionPatterns {
		if p.fields.MatchString(name) || (p.values != nil && p.values.MatchString(value)) {
			cats = append(cats, p.category)
		}
	}
	return cats
}

// detectText returns the categories tripped anywhere in free text, for
// scanning generated output. Name-only categories cannot match here.
func detectText(text string) []string {
	var cats []string
	for _, p := range detectionPatterns {
		if p.values != nil && p.values.MatchString(text) {
			cats = append(cats, p.category)
		}
	}
	sort.Strings(cats)
	return cats
}
