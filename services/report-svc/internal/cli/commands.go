package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"workshop/pkg/identity"
)

func newGenerateCmd(opts *options) *cobra.Command {
	var (
		params GenerateParams
		output string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a report",
		Long: `Generate a report for an explicit date range or a named period.

Dates accept YYYY-MM-DD or RFC 3339. With --output the artifact is downloaded
right away; a directory keeps the server-side file name.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c := opts.client()

			resp, err := c.Generate(ctx, params)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.json {
				if err := printJSON(out, resp); err != nil {
					return err
				}
			} else {
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintf(tw, "ID:\t%s\n", resp.ID)
				fmt.Fprintf(tw, "File:\t%s (%d bytes, %d rows)\n", resp.FileName, resp.Size, resp.RowCount)
				fmt.Fprintf(tw, "Period:\t%s .. %s\n", resp.PeriodStart.Format(time.RFC3339), resp.PeriodEnd.Format(time.RFC3339))
				fmt.Fprintf(tw, "Expires:\t%s\n", resp.ExpiresAt.Format(time.RFC3339))
				fmt.Fprintf(tw, "Download:\t%s\n", resp.DownloadURL)
				if err := tw.Flush(); err != nil {
					return err
				}
			}

			if output == "" {
				return nil
			}
			path, err := downloadTo(ctx, c, resp.ID, output)
			if err != nil {
				return err
			}
			if !opts.json {
				fmt.Fprintf(out, "Saved:\t%s\n", path)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&params.ReportType, "type", "t", "", "Report type, see 'reportctl types'")
	f.StringVarP(&params.Format, "format", "f", "csv", "Output format (csv|excel|pdf|json|markdown|html)")
	f.StringVar(&params.StartDate, "start", "", "Period start")
	f.StringVar(&params.EndDate, "end", "", "Period end")
	f.StringVarP(&params.Period, "period", "p", "", "Named period (TODAY, LAST_MONTH, ...)")
	f.StringVarP(&output, "output", "o", "", "Download the artifact to this file or directory")
	_ = cmd.MarkFlagRequired("type")
	cmd.MarkFlagsMutuallyExclusive("period", "start")
	cmd.MarkFlagsMutuallyExclusive("period", "end")

	return cmd
}

func newDownloadCmd(opts *options) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download <id>",
		Short: "Download a generated report",
		Long: `Download a report artifact by id. Without --output the file is saved in the
current directory under its server-side name; "-" writes to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()

			if output == "-" {
				_, err := c.Download(cmd.Context(), args[0], cmd.OutOrStdout())
				return err
			}
			if output == "" {
				output = "."
			}

			path, err := downloadTo(cmd.Context(), c, args[0], output)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Target file or directory, - for stdout")
	return cmd
}

// downloadTo сохраняет артефакт; для каталога имя берётся из ответа сервера
func downloadTo(ctx context.Context, c *Client, id, target string) (string, error) {
	dir, file := filepath.Dir(target), target
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		dir, file = target, ""
	}

	tmp, err := os.CreateTemp(dir, ".reportctl-*")
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	name, err := c.Download(ctx, id, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", err
	}

	if file == "" {
		file = filepath.Join(dir, filepath.Base(name))
	}
	if err := os.Rename(tmp.Name(), file); err != nil {
		return "", fmt.Errorf("failed to save report: %w", err)
	}
	return file, nil
}

func newHistoryCmd(opts *options) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List live reports of an owner",
		Long: `List reports that have not expired yet, newest first. Without credentials
the service answers for the system owner; --owner requires the admin key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := opts.client().History(cmd.Context(), owner)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.json {
				return printJSON(out, resp)
			}
			if resp.Total == 0 {
				fmt.Fprintln(out, "No reports.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTYPE\tFORMAT\tSIZE\tSTATUS\tGENERATED\tEXPIRES")
			for _, it := range resp.Items {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
					it.ID, it.ReportType, it.Format, it.Size, it.Status,
					it.GeneratedAt.Format(time.RFC3339), it.ExpiresAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Owner to list (admin only)")
	return cmd
}

func newDeleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a report before it expires",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.client().Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func newCleanupCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Run one reaper pass now (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := opts.client().Cleanup(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.json {
				return printJSON(out, resp)
			}
			fmt.Fprintf(out, "Reclaimed %d entries: %d files deleted, %d already missing\n",
				resp.Reclaimed, resp.FilesDeleted, resp.FilesMissing)
			for _, f := range resp.Failures {
				fmt.Fprintf(out, "  failed %s (%s): %s\n", f.ID, f.Path, f.Error)
			}
			return nil
		},
	}
}

func newTypesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List report types, formats and named periods",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := opts.client().Types(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.json {
				return printJSON(out, resp)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TYPE\tTITLE\tCOLUMNS")
			for _, t := range resp.Types {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Type, t.Title, strings.Join(t.Headers, ", "))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\nFormats: %s\n", strings.Join(resp.Formats, ", "))
			fmt.Fprintf(out, "Periods: %s\n", strings.Join(resp.Periods, ", "))
			return nil
		},
	}
}

func newTokenCmd() *cobra.Command {
	var (
		secret  string
		issuer  string
		subject string
		role    string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development bearer token",
		Long: `Mint an HS256 token signed with the service secret. Intended for local
development and smoke tests; production tokens come from the identity provider.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				return fmt.Errorf("%w: --secret", errMissingArg)
			}
			if subject == "" {
				return fmt.Errorf("%w: --subject", errMissingArg)
			}

			tm := identity.NewTokenManager(&identity.JWTConfig{
				SecretKey:   secret,
				TokenExpiry: ttl,
				Issuer:      issuer,
			})
			token, err := tm.Generate(subject, role)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), token+"\n")
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&secret, "secret", os.Getenv("WORKSHOP_AUTH_JWT_SECRET"), "Signing secret (auth.jwt_secret)")
	f.StringVar(&issuer, "issuer", envOr("WORKSHOP_AUTH_ISSUER", "workshop"), "Token issuer (auth.issuer)")
	f.StringVar(&subject, "subject", "", "Token subject, becomes the report owner")
	f.StringVar(&role, "role", identity.RoleUser, "Role (user|admin)")
	f.DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")

	return cmd
}
