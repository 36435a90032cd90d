package cli

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newDemographicsCmd(client *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demographics",
		Short: "Record and aggregate voluntary demographic data",
		Long: `Demographic attributes live in an isolated store, separate from loan
data. They can be written on behalf of an applicant and read back only as
k-anonymous aggregates; there is no way to fetch an individual's record.`,
	}

	cmd.AddCommand(newDemographicsRecordCmd(client))
	cmd.AddCommand(newDemographicsAggregateCmd(client))

	return cmd
}

func newDemographicsRecordCmd(client *Client) *cobra.Command {
	var (
		subjectID    string
		attrs        []string
		collectedVia string
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Store voluntarily provided demographics for an applicant",
		Example: `  fairgate demographics record --subject app_01HX... \
    --attr gender=female --attr ethnicity=hispanic --attr age_band=30-39`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			attributes, err := parseKeyValues(attrs)
			if err != nil {
				return err
			}
			body := map[string]any{
				"subject_id":    subjectID,
				"attributes":    attributes,
				"collected_via": collectedVia,
			}
			var res map[string]any
			if err := client.JSON("POST", "/demographics", nil, body, &res); err != nil {
				return err
			}
			if isQuiet(cmd) || getOutputFormat(cmd) != "json" {
				_, _ = fmt.Fprintln(os.Stdout, ExtractField(res, "id"))
				return nil
			}
			return PrintJSON(os.Stdout, res)
		},
	}

	cmd.Flags().StringVar(&subjectID, "subject", "", "Application the demographics belong to")
	cmd.Flags().StringArrayVar(&attrs, "attr", nil, "Attribute as key=value (repeatable)")
	cmd.Flags().StringVar(&collectedVia, "collected-via", "voluntary_form", "How the data was collected")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("attr")

	return cmd
}

func newDemographicsAggregateCmd(client *Client) *cobra.Command {
	var (
		groupBy  []string
		statuses []string
	)

	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Compute k-anonymous aggregate statistics",
		Long: `Group applications by demographic attributes and return counts and
rates per group. Groups below the configured minimum sample size come back
suppressed rather than small.`,
		Example: `  # Approval rates by gender
  fairgate demographics aggregate --group-by gender

  # Cross ethnicity and age band over decided applications
  fairgate demographics aggregate --group-by ethnicity --group-by age_band --status DECIDED`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body := map[string]any{"group_by": groupBy}
			if len(statuses) > 0 {
				body["statuses"] = statuses
			}

			var data struct {
				Groups []struct {
					GroupLabels map[string]string  `json:"group_labels"`
					Values      map[string]float64 `json:"values"`
					SampleSize  int                `json:"sample_size"`
				} `json:"groups"`
			}
			if err := client.JSON("POST", "/demographics/aggregate", nil, body, &data); err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				return PrintJSON(os.Stdout, data)
			}

			columns := []string{"group", "sample_size", "values"}
			rows := make([][]string, 0, len(data.Groups))
			for _, g := range data.Groups {
				rows = append(rows, []string{
					formatLabels(g.GroupLabels),
					strconv.Itoa(g.SampleSize),
					formatValues(g.Values),
				})
			}
			PrintTable(os.Stdout, columns, rows)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&groupBy, "group-by", nil, "Attribute to group by (repeatable)")
	cmd.Flags().StringArrayVar(&statuses, "status", nil, "Restrict to applications in this status (repeatable)")
	_ = cmd.MarkFlagRequired("group-by")

	return cmd
}

func newScreenCmd(client *Client) *cobra.Command {
	var (
		fields    []string
		sourceRef string
	)

	cmd := &cobra.Command{
		Use:   "screen",
		Short: "Screen extracted document fields for protected attributes",
		Long: `Run extracted key/value pairs through the detection net before they
are stored on the general path. Fields recognized as protected-class data
are dropped from the returned payload and the exclusion is recorded.`,
		Example: `  fairgate screen --source-ref paystub_017 \
    --field employer="Cedar Health" --field gender=female`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			payload, err := parseKeyValues(fields)
			if err != nil {
				return err
			}
			body := map[string]any{
				"payload":    payload,
				"source_ref": sourceRef,
			}
			var res struct {
				Payload        map[string]string `json:"payload"`
				ExcludedFields []string          `json:"excluded_fields"`
			}
			if err := client.JSON("POST", "/extracted/screen", nil, body, &res); err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				return PrintJSON(os.Stdout, res)
			}
			fieldsOut := make(map[string]any, len(res.Payload)+1)
			for k, v := range res.Payload {
				fieldsOut[k] = v
			}
			if len(res.ExcludedFields) > 0 {
				fieldsOut["excluded_fields"] = res.ExcludedFields
			}
			PrintDetail(os.Stdout, fieldsOut)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&fields, "field", nil, "Extracted field as key=value (repeatable)")
	cmd.Flags().StringVar(&sourceRef, "source-ref", "", "Reference to the source document")
	_ = cmd.MarkFlagRequired("field")

	return cmd
}

func parseKeyValues(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid key=value pair %q", pair)
		}
		out[k] = v
	}
	return out, nil
}

func formatLabels(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+labels[k])
	}
	return strings.Join(parts, " ")
}

func formatValues(values map[string]float64) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%.3f", k, values[k]))
	}
	return strings.Join(parts, " ")
}
