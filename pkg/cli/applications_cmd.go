package cli

import (
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

func newApplicationsCmd(client *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "applications",
		Aliases: []string{"apps"},
		Short:   "Work with loan applications",
	}

	cmd.AddCommand(newApplicationsListCmd(client))
	cmd.AddCommand(newApplicationsGetCmd(client))
	cmd.AddCommand(newApplicationsCreateCmd(client))
	cmd.AddCommand(newApplicationsDecideCmd(client))

	return cmd
}

func newApplicationsListCmd(client *Client) *cobra.Command {
	var (
		maxResults int
		pageToken  string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List applications visible to the caller",
		Long:  "List applications. The server narrows the result to the caller's scope and masks fields the caller's role may not see.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			if maxResults > 0 {
				q.Set("max_results", strconv.Itoa(maxResults))
			}
			if pageToken != "" {
				q.Set("page_token", pageToken)
			}

			var data struct {
				Applications  []map[string]any `json:"applications"`
				TotalCount    int64            `json:"total_count"`
				NextPageToken string           `json:"next_page_token"`
			}
			if err := client.JSON("GET", "/applications", q, nil, &data); err != nil {
				return err
			}

			if isQuiet(cmd) {
				for _, app := range data.Applications {
					_, _ = fmt.Fprintln(os.Stdout, ExtractField(app, "id"))
				}
				return nil
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(os.Stdout, data)
			}

			columns := []string{"id", "applicant", "status", "amount_cents", "assigned_to", "created_at"}
			rows := make([][]string, 0, len(data.Applications))
			for _, app := range data.Applications {
				rows = append(rows, []string{
					ExtractField(app, "id"),
					ExtractField(app, "applicant_name"),
					ExtractField(app, "status"),
					ExtractField(app, "amount_cents"),
					ExtractField(app, "assigned_to"),
					ExtractField(app, "created_at"),
				})
			}
			PrintTable(os.Stdout, columns, rows)
			if data.NextPageToken != "" {
				_, _ = fmt.Fprintf(os.Stdout, "\nnext page: --page-token %s\n", data.NextPageToken)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&maxResults, "max-results", 0, "Maximum number of applications to return")
	cmd.Flags().StringVar(&pageToken, "page-token", "", "Continue from a previous page")

	return cmd
}

func newApplicationsGetCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "get <application-id>",
		Short: "Show one application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var app map[string]any
			if err := client.JSON("GET", "/applications/"+url.PathEscape(args[0]), nil, nil, &app); err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(os.Stdout, app)
			}
			PrintDetail(os.Stdout, app)
			return nil
		},
	}
}

func newApplicationsCreateCmd(client *Client) *cobra.Command {
	var (
		applicant   string
		ssnLast4    string
		incomeCents int64
		amountCents int64
		assignedTo  string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Submit a new loan application",
		Example: `  fairgate applications create \
    --applicant "Dana Whitfield" --ssn-last4 4821 \
    --income-cents 7250000 --amount-cents 32000000 \
    --assigned-to officer_ramos`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body := map[string]any{
				"applicant_name": applicant,
				"ssn_last4":      ssnLast4,
				"income_cents":   incomeCents,
				"amount_cents":   amountCents,
				"assigned_to":    assignedTo,
			}
			var app map[string]any
			if err := client.JSON("POST", "/applications", nil, body, &app); err != nil {
				return err
			}
			if isQuiet(cmd) {
				_, _ = fmt.Fprintln(os.Stdout, ExtractField(app, "id"))
				return nil
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(os.Stdout, app)
			}
			PrintDetail(os.Stdout, app)
			return nil
		},
	}

	cmd.Flags().StringVar(&applicant, "applicant", "", "Applicant full name")
	cmd.Flags().StringVar(&ssnLast4, "ssn-last4", "", "Last four digits of the applicant's SSN")
	cmd.Flags().Int64Var(&incomeCents, "income-cents", 0, "Annual income in cents")
	cmd.Flags().Int64Var(&amountCents, "amount-cents", 0, "Requested loan amount in cents")
	cmd.Flags().StringVar(&assignedTo, "assigned-to", "", "Loan officer the case is assigned to")
	_ = cmd.MarkFlagRequired("applicant")
	_ = cmd.MarkFlagRequired("amount-cents")

	return cmd
}

func newApplicationsDecideCmd(client *Client) *cobra.Command {
	var (
		outcome           string
		rationale         string
		recommenderOutput string
		humanOutput       string
		override          bool
	)

	cmd := &cobra.Command{
		Use:   "decide <application-id>",
		Short: "Record a decision on an application",
		Long: `Record an approve or deny decision. The decision lands in the event
ledger with the full rationale; the application status column follows it.
Deciding an already-decided application requires --override, which is
recorded as an override event.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{
				"outcome":            outcome,
				"rationale":          rationale,
				"recommender_output": recommenderOutput,
				"human_output":       humanOutput,
				"override":           override,
			}
			var res struct {
				SequenceNo int64  `json:"sequence_no"`
				EventType  string `json:"event_type"`
				SubjectID  string `json:"subject_id"`
				Status     string `json:"status"`
			}
			if err := client.JSON("POST", "/applications/"+url.PathEscape(args[0])+"/decision", nil, body, &res); err != nil {
				return err
			}
			if isQuiet(cmd) {
				_, _ = fmt.Fprintln(os.Stdout, res.SequenceNo)
				return nil
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(os.Stdout, res)
			}
			PrintDetail(os.Stdout, map[string]any{
				"sequence_no": res.SequenceNo,
				"event_type":  res.EventType,
				"subject_id":  res.SubjectID,
				"status":      res.Status,
			})
			return nil
		},
	}

	cmd.Flags().StringVar(&outcome, "outcome", "", "Decision outcome (approved, denied)")
	cmd.Flags().StringVar(&rationale, "rationale", "", "Human-readable decision rationale")
	cmd.Flags().StringVar(&recommenderOutput, "recommender-output", "", "Raw recommender output to preserve alongside the decision")
	cmd.Flags().StringVar(&humanOutput, "human-output", "", "Reviewer notes to preserve alongside the decision")
	cmd.Flags().BoolVar(&override, "override", false, "Override a previously recorded decision")
	_ = cmd.MarkFlagRequired("outcome")
	_ = cmd.MarkFlagRequired("rationale")

	return cmd
}
