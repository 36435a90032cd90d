package cli

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newLedgerCmd(client *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Query, verify, and export the event ledger",
	}

	cmd.AddCommand(newLedgerHistoryCmd(client))
	cmd.AddCommand(newLedgerTraceCmd(client))
	cmd.AddCommand(newLedgerSearchCmd(client))
	cmd.AddCommand(newLedgerVerifyCmd(client))
	cmd.AddCommand(newLedgerExportCmd(client))

	return cmd
}

type eventOut struct {
	SequenceNo  int64          `json:"sequence_no"`
	PrevHash    string         `json:"prev_hash"`
	ThisHash    string         `json:"this_hash"`
	EventType   string         `json:"event_type"`
	PrincipalID string         `json:"principal_id"`
	RoleAtTime  string         `json:"role_at_time"`
	SubjectID   string         `json:"subject_id"`
	Payload     map[string]any `json:"payload"`
	CreatedAt   time.Time      `json:"created_at"`
}

type eventListOut struct {
	Events        []eventOut `json:"events"`
	TotalCount    int64      `json:"total_count"`
	NextPageToken string     `json:"next_page_token"`
}

func printEvents(cmd *cobra.Command, data eventListOut) error {
	if isQuiet(cmd) {
		for _, e := range data.Events {
			_, _ = fmt.Fprintln(os.Stdout, e.SequenceNo)
		}
		return nil
	}
	if getOutputFormat(cmd) == "json" {
		return PrintJSON(os.Stdout, data)
	}

	columns := []string{"seq", "type", "principal", "role", "subject", "created_at"}
	rows := make([][]string, 0, len(data.Events))
	for _, e := range data.Events {
		rows = append(rows, []string{
			strconv.FormatInt(e.SequenceNo, 10),
			e.EventType,
			e.PrincipalID,
			e.RoleAtTime,
			e.SubjectID,
			e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	PrintTable(os.Stdout, columns, rows)
	if data.NextPageToken != "" {
		_, _ = fmt.Fprintf(os.Stdout, "\nnext page: --page-token %s\n", data.NextPageToken)
	}
	return nil
}

func newLedgerHistoryCmd(client *Client) *cobra.Command {
	var (
		maxResults int
		pageToken  string
	)

	cmd := &cobra.Command{
		Use:   "history <subject-id>",
		Short: "List every event recorded for one application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if maxResults > 0 {
				q.Set("max_results", strconv.Itoa(maxResults))
			}
			if pageToken != "" {
				q.Set("page_token", pageToken)
			}
			var data eventListOut
			if err := client.JSON("GET", "/ledger/subjects/"+url.PathEscape(args[0])+"/events", q, nil, &data); err != nil {
				return err
			}
			return printEvents(cmd, data)
		},
	}

	cmd.Flags().IntVar(&maxResults, "max-results", 0, "Maximum number of events to return")
	cmd.Flags().StringVar(&pageToken, "page-token", "", "Continue from a previous page")

	return cmd
}

func newLedgerTraceCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "trace <sequence-no>",
		Short: "Show a decision event with everything that led to it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("sequence number must be an integer, got %q", args[0])
			}
			var data struct {
				Decision eventOut   `json:"decision"`
				Related  []eventOut `json:"related"`
			}
			if err := client.JSON("GET", "/ledger/decisions/"+args[0]+"/trace", nil, nil, &data); err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(os.Stdout, data)
			}

			_, _ = fmt.Fprintf(os.Stdout, "decision %d (%s) on %s by %s [%s]\n\n",
				data.Decision.SequenceNo, data.Decision.EventType, data.Decision.SubjectID,
				data.Decision.PrincipalID, data.Decision.RoleAtTime)
			return printEvents(cmd, eventListOut{Events: data.Related})
		},
	}
}

func newLedgerSearchCmd(client *Client) *cobra.Command {
	var (
		from       string
		to         string
		eventType  string
		predicate  string
		maxResults int
		pageToken  string
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search the ledger by time window, event type, and predicate",
		Long: `Search events in a time window. --predicate takes a Starlark
expression evaluated per event with event_type, principal_id, subject_id,
and payload in scope.`,
		Example: `  # Denials in the last day
  fairgate ledger search --predicate 'payload.get("outcome") == "deny"'

  # Decisions by one principal over a window
  fairgate ledger search --type decision \
    --from 2026-08-01T00:00:00Z --to 2026-08-21T00:00:00Z \
    --predicate 'principal_id == "agent_ramos"'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fromTime, toTime, err := parseWindow(from, to)
			if err != nil {
				return err
			}
			body := map[string]any{
				"from": fromTime.Format(time.RFC3339),
				"to":   toTime.Format(time.RFC3339),
			}
			if eventType != "" {
				body["event_type"] = eventType
			}
			if predicate != "" {
				body["predicate"] = predicate
			}
			if maxResults > 0 {
				body["max_results"] = maxResults
			}
			if pageToken != "" {
				body["page_token"] = pageToken
			}

			var data eventListOut
			if err := client.JSON("POST", "/ledger/search", nil, body, &data); err != nil {
				return err
			}
			return printEvents(cmd, data)
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "Window start, RFC 3339 (default 24h ago)")
	cmd.Flags().StringVar(&to, "to", "", "Window end, RFC 3339 (default now)")
	cmd.Flags().StringVar(&eventType, "type", "", "Restrict to one event type")
	cmd.Flags().StringVar(&predicate, "predicate", "", "Starlark predicate evaluated per event")
	cmd.Flags().IntVar(&maxResults, "max-results", 0, "Maximum number of events to return")
	cmd.Flags().StringVar(&pageToken, "page-token", "", "Continue from a previous page")

	return cmd
}

func parseWindow(from, to string) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	fromTime := now.Add(-24 * time.Hour)
	toTime := now

	var err error
	if from != "" {
		fromTime, err = time.Parse(time.RFC3339, from)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --from %q: use RFC 3339, e.g. 2026-08-21T00:00:00Z", from)
		}
	}
	if to != "" {
		toTime, err = time.Parse(time.RFC3339, to)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to %q: use RFC 3339, e.g. 2026-08-21T00:00:00Z", to)
		}
	}
	if !toTime.After(fromTime) {
		return time.Time{}, time.Time{}, fmt.Errorf("--to must be after --from")
	}
	return fromTime, toTime, nil
}

func newLedgerVerifyCmd(client *Client) *cobra.Command {
	var (
		fromSeq int64
		toSeq   int64
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Recompute the hash chain and report the first break, if any",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body := map[string]any{}
			if fromSeq > 0 {
				body["from_seq"] = fromSeq
			}
			if toSeq > 0 {
				body["to_seq"] = toSeq
			}
			var res struct {
				Valid         bool   `json:"valid"`
				Checked       int64  `json:"checked"`
				FirstBrokenAt *int64 `json:"first_broken_at"`
			}
			if err := client.JSON("POST", "/ledger/verify", nil, body, &res); err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(os.Stdout, res)
			}
			if res.Valid {
				_, _ = fmt.Fprintf(os.Stdout, "chain intact: %d events verified\n", res.Checked)
				return nil
			}
			_, _ = fmt.Fprintf(os.Stdout, "CHAIN BROKEN at sequence %d (%d events checked)\n", *res.FirstBrokenAt, res.Checked)
			return fmt.Errorf("ledger verification failed")
		},
	}

	cmd.Flags().Int64Var(&fromSeq, "from-seq", 0, "First sequence number to verify")
	cmd.Flags().Int64Var(&toSeq, "to-seq", 0, "Last sequence number to verify")

	return cmd
}

func newLedgerExportCmd(client *Client) *cobra.Command {
	var (
		format      string
		fromSeq     int64
		toSeq       int64
		destination string
		outPath     string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a ledger range as NDJSON or CSV",
		Long: `Export a range of the chain. Without --destination the archive streams
back and is written to --out or stdout; with --destination the server
uploads it to the named registered destination and reports the location.
Either way the export itself is recorded in the ledger.`,
		Example: `  # Stream the whole chain as NDJSON to a file
  fairgate ledger export --format ndjson --out ledger.ndjson

  # Upload a range to a registered destination
  fairgate ledger export --format csv --from-seq 1 --to-seq 5000 --destination audit-archive`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body := map[string]any{"format": format}
			if fromSeq > 0 {
				body["from_seq"] = fromSeq
			}
			if toSeq > 0 {
				body["to_seq"] = toSeq
			}

			if destination != "" {
				body["destination"] = destination
				var res struct {
					Events   int64  `json:"events"`
					Location string `json:"location"`
				}
				if err := client.JSON("POST", "/ledger/export", nil, body, &res); err != nil {
					return err
				}
				if getOutputFormat(cmd) == "json" {
					return PrintJSON(os.Stdout, res)
				}
				_, _ = fmt.Fprintf(os.Stdout, "exported %d events to %s\n", res.Events, res.Location)
				return nil
			}

			resp, err := client.Do("POST", "/ledger/export", nil, body)
			if err != nil {
				return err
			}
			if err := CheckError(resp); err != nil {
				return err
			}
			defer resp.Body.Close()

			out := io.Writer(os.Stdout)
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return fmt.Errorf("create %s: %w", outPath, err)
				}
				defer f.Close()
				out = f
			}
			if _, err := io.Copy(out, resp.Body); err != nil {
				return fmt.Errorf("stream archive: %w", err)
			}
			if outPath != "" {
				_, _ = fmt.Fprintf(os.Stderr, "exported %s events to %s\n", resp.Header.Get("X-Export-Events"), outPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "ndjson", "Archive format (ndjson, csv)")
	cmd.Flags().Int64Var(&fromSeq, "from-seq", 0, "First sequence number to export")
	cmd.Flags().Int64Var(&toSeq, "to-seq", 0, "Last sequence number to export")
	cmd.Flags().StringVar(&destination, "destination", "", "Registered destination to upload to")
	cmd.Flags().StringVar(&outPath, "out", "", "Write the streamed archive to this file")

	return cmd
}
