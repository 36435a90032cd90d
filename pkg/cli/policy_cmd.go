package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fairgate/internal/policy"
)

func newPolicyCmd(client *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect and manage the access policy",
	}

	cmd.AddCommand(newPolicyShowCmd(client))
	cmd.AddCommand(newPolicyReloadCmd(client))
	cmd.AddCommand(newPolicyValidateCmd())
	cmd.AddCommand(newPolicyInitCmd())

	return cmd
}

type policyOut struct {
	Version    int64     `json:"version"`
	Hash       string    `json:"hash"`
	LoadedAt   time.Time `json:"loaded_at"`
	Roles      []string  `json:"roles"`
	Operations []string  `json:"operations"`
}

func printPolicy(cmd *cobra.Command, p policyOut) error {
	if getOutputFormat(cmd) == "json" {
		return PrintJSON(os.Stdout, p)
	}
	PrintDetail(os.Stdout, map[string]any{
		"version":    p.Version,
		"hash":       p.Hash,
		"loaded_at":  p.LoadedAt.UTC().Format(time.RFC3339),
		"roles":      strings.Join(p.Roles, ", "),
		"operations": strings.Join(p.Operations, ", "),
	})
	return nil
}

func newPolicyShowCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the policy version the server is enforcing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var p policyOut
			if err := client.JSON("GET", "/policy", nil, nil, &p); err != nil {
				return err
			}
			return printPolicy(cmd, p)
		},
	}
}

func newPolicyReloadCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Ask the server to reload its policy file now",
		Long: `Trigger an immediate reload of the server's policy file. A file that
fails validation is rejected and the previous snapshot stays in force.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var p policyOut
			if err := client.JSON("POST", "/policy/reload", nil, nil, &p); err != nil {
				return err
			}
			return printPolicy(cmd, p)
		},
	}
}

func newPolicyValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a policy file locally, without a server",
		Long: `Parse and validate a policy file with the same loader the server uses.
Exits non-zero when the file would be rejected.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := policy.LoadFile(args[0])
			if err != nil {
				return fmt.Errorf("policy invalid: %w", err)
			}
			return printPolicy(cmd, policyOut{
				Version:    snap.Version,
				Hash:       snap.Hash,
				LoadedAt:   snap.LoadedAt,
				Roles:      snap.RoleNames(),
				Operations: snap.OperationNames(),
			})
		},
	}
}

func newPolicyInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default starter policy",
		Long:  "Write the default policy shipped with the platform to the given path, or to stdout when no path is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if len(args) == 0 {
				_, _ = fmt.Fprint(os.Stdout, policy.DefaultYAML)
				return nil
			}
			path := args[0]
			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("%s already exists; pass --force to overwrite", path)
				}
			}
			if err := os.WriteFile(path, []byte(policy.DefaultYAML), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			_, _ = fmt.Fprintf(os.Stdout, "wrote starter policy to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	return cmd
}
