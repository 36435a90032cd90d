package cli

import (
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newDestinationCmd(client *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "destination",
		Aliases: []string{"destinations"},
		Short:   "Manage registered export destinations",
	}

	cmd.AddCommand(newDestinationListCmd(client))
	cmd.AddCommand(newDestinationAddCmd(client))
	cmd.AddCommand(newDestinationRemoveCmd(client))

	return cmd
}

type destinationOut struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Prefix    string `json:"prefix"`
	Bucket    string `json:"bucket"`
	Endpoint  string `json:"endpoint"`
	Region    string `json:"region"`
	Container string `json:"container"`
	Directory string `json:"directory"`
}

func newDestinationListCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered export destinations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var data struct {
				Destinations []destinationOut `json:"destinations"`
				TotalCount   int64            `json:"total_count"`
			}
			if err := client.JSON("GET", "/destinations", nil, nil, &data); err != nil {
				return err
			}

			if isQuiet(cmd) {
				for _, d := range data.Destinations {
					_, _ = fmt.Fprintln(os.Stdout, d.Name)
				}
				return nil
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(os.Stdout, data)
			}

			columns := []string{"name", "kind", "target", "prefix"}
			rows := make([][]string, 0, len(data.Destinations))
			for _, d := range data.Destinations {
				rows = append(rows, []string{d.Name, d.Kind, destinationTarget(d), d.Prefix})
			}
			PrintTable(os.Stdout, columns, rows)
			return nil
		},
	}
}

func destinationTarget(d destinationOut) string {
	switch {
	case d.Bucket != "":
		return d.Bucket
	case d.Container != "":
		return d.Container
	case d.Directory != "":
		return d.Directory
	default:
		return d.Endpoint
	}
}

func newDestinationAddCmd(client *Client) *cobra.Command {
	var (
		name   string
		kind   string
		prefix string

		bucket   string
		keyID    string
		secret   string
		endpoint string
		region   string

		azureAccountName string
		azureAccountKey  string
		azureContainer   string

		gcsBucket  string
		gcsKeyFile string

		directory string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register an export destination",
		Long: `Register a destination ledger archives can be exported to. Credentials
are encrypted at rest; list output never includes them.`,
		Example: `  # S3-compatible object storage
  fairgate destination add --name audit-archive --kind s3 \
    --bucket compliance-exports --region us-east-1 \
    --key-id AKIA... --secret ...

  # Local directory for development
  fairgate destination add --name local --kind filesystem --directory /tmp/exports`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if kind == "s3" && keyID != "" && secret == "" {
				v, err := promptCredential("Secret access key: ")
				if err != nil {
					return err
				}
				secret = v
			}
			if kind == "azure" && azureAccountName != "" && azureAccountKey == "" {
				v, err := promptCredential("Storage account key: ")
				if err != nil {
					return err
				}
				azureAccountKey = v
			}

			body := map[string]any{
				"name":   name,
				"kind":   kind,
				"prefix": prefix,

				"bucket":   bucket,
				"key_id":   keyID,
				"secret":   secret,
				"endpoint": endpoint,
				"region":   region,

				"azure_account_name": azureAccountName,
				"azure_account_key":  azureAccountKey,
				"azure_container":    azureContainer,

				"gcs_bucket":        gcsBucket,
				"gcs_key_file_path": gcsKeyFile,

				"directory": directory,
			}
			var res destinationOut
			if err := client.JSON("POST", "/destinations", nil, body, &res); err != nil {
				return err
			}
			if isQuiet(cmd) {
				_, _ = fmt.Fprintln(os.Stdout, res.Name)
				return nil
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(os.Stdout, res)
			}
			_, _ = fmt.Fprintf(os.Stdout, "destination %q (%s) registered\n", res.Name, res.Kind)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Destination name")
	cmd.Flags().StringVar(&kind, "kind", "", "Destination kind (s3, azure, gcs, filesystem)")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Key prefix for stored archives")
	cmd.Flags().StringVar(&bucket, "bucket", "", "S3 bucket name")
	cmd.Flags().StringVar(&keyID, "key-id", "", "S3 access key id")
	cmd.Flags().StringVar(&secret, "secret", "", "S3 secret access key")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "S3-compatible endpoint URL")
	cmd.Flags().StringVar(&region, "region", "", "S3 region")
	cmd.Flags().StringVar(&azureAccountName, "azure-account-name", "", "Azure storage account name")
	cmd.Flags().StringVar(&azureAccountKey, "azure-account-key", "", "Azure storage account key")
	cmd.Flags().StringVar(&azureContainer, "azure-container", "", "Azure blob container")
	cmd.Flags().StringVar(&gcsBucket, "gcs-bucket", "", "GCS bucket name")
	cmd.Flags().StringVar(&gcsKeyFile, "gcs-key-file", "", "Path to a GCS service account key file on the server")
	cmd.Flags().StringVar(&directory, "directory", "", "Filesystem directory on the server")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("kind")

	return cmd
}

// promptCredential reads a secret from the terminal when a paired identifier
// was given without one. Non-interactive invocations skip the prompt and let
// the server reject incomplete credentials.
func promptCredential(label string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", nil
	}
	_, _ = fmt.Fprint(os.Stderr, label)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	_, _ = fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read credential: %w", err)
	}
	return string(raw), nil
}

func newDestinationRemoveCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Remove a registered destination",
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if err := client.JSON("DELETE", "/destinations/"+url.PathEscape(args[0]), nil, nil, nil); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(os.Stdout, "destination %q removed\n", args[0])
			return nil
		},
	}
}
