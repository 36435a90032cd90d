package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authentication helpers",
	}

	cmd.AddCommand(newAuthTokenCmd())
	cmd.AddCommand(newAuthWhoamiCmd())
	return cmd
}

func newAuthTokenCmd() *cobra.Command {
	var (
		principal string
		roles     []string
		secret    string
		expires   time.Duration
		noSave    bool
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a dev-mode credential and save it to the active profile",
		Long: `Mint an HS256 credential for development and testing, signed with the
server's shared secret. The credential is saved to the active profile so
subsequent commands use it automatically.

The secret comes from --secret, the JWT_SECRET environment variable, or an
interactive prompt, in that order.`,
		Example: `  # Mint a compliance credential using the secret from the server's .env
  fairgate auth token --role compliance_officer

  # Mint a loan officer credential for a named principal with custom expiry
  fairgate auth token --principal agent_ramos --role loan_officer --expires 48h`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			resolved, err := resolveSecret(secret)
			if err != nil {
				return err
			}

			now := time.Now()
			claims := jwt.MapClaims{
				"sub":   principal,
				"roles": roles,
				"iat":   now.Unix(),
				"exp":   now.Add(expires).Unix(),
			}
			signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(resolved))
			if err != nil {
				return fmt.Errorf("sign credential: %w", err)
			}

			if !noSave {
				cfg, err := LoadUserConfig()
				if err != nil {
					cfg = &UserConfig{Profiles: map[string]Profile{}}
				}
				name := cfg.CurrentProfile
				if name == "" {
					name = "default"
					cfg.CurrentProfile = name
				}
				if cfg.Profiles == nil {
					cfg.Profiles = map[string]Profile{}
				}
				p := cfg.Profiles[name]
				p.Token = signed
				cfg.Profiles[name] = p
				if err := SaveUserConfig(cfg); err != nil {
					return fmt.Errorf("save config: %w", err)
				}
			}

			_, _ = fmt.Fprintln(os.Stdout, signed)
			return nil
		},
	}

	cmd.Flags().StringVar(&principal, "principal", "dev_operator", "Principal identifier (sub claim)")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "Role to grant (repeatable)")
	cmd.Flags().StringVar(&secret, "secret", "", "HS256 signing secret (falls back to JWT_SECRET, then a prompt)")
	cmd.Flags().DurationVar(&expires, "expires", 24*time.Hour, "Credential lifetime")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "Print the credential without saving it to the profile")
	_ = cmd.MarkFlagRequired("role")

	return cmd
}

// resolveSecret finds the signing secret: explicit flag, then the server's
// JWT_SECRET environment variable, then an interactive prompt when stdin is
// a terminal.
func resolveSecret(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		return v, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("no signing secret: pass --secret or set JWT_SECRET")
	}
	_, _ = fmt.Fprint(os.Stderr, "Signing secret: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	_, _ = fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("no signing secret: pass --secret or set JWT_SECRET")
	}
	return string(raw), nil
}

func newAuthWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the principal and roles in the configured credential",
		Long: `Decode the credential the CLI would send, without verifying its
signature, and show its subject, roles, and expiry. Verification happens
server-side; this is a local inspection aid.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, _ := cmd.Root().PersistentFlags().GetString("token")
			if token == "" {
				cfg, err := LoadUserConfig()
				if err != nil {
					return fmt.Errorf("no credential: run 'fairgate auth token' or pass --token")
				}
				profile, _ := cmd.Root().PersistentFlags().GetString("profile")
				token = cfg.ActiveProfile(profile).Token
			}
			if token == "" {
				return fmt.Errorf("no credential: run 'fairgate auth token' or pass --token")
			}

			var claims jwt.MapClaims
			if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
				return fmt.Errorf("decode credential: %w", err)
			}

			fields := map[string]any{
				"principal": claims["sub"],
				"roles":     claims["roles"],
			}
			if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
				fields["expires"] = exp.Time.UTC().Format(time.RFC3339)
				fields["expired"] = time.Now().After(exp.Time)
			}

			if getOutputFormat(cmd) == "json" {
				return PrintJSON(os.Stdout, fields)
			}
			PrintDetail(os.Stdout, fields)
			return nil
		},
	}
}
