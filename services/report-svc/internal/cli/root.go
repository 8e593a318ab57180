// Package cli реализует reportctl - операторскую утилиту для API отчётов.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"workshop/pkg/apperror"
)

// Version версия reportctl
var Version = "1.0.0"

// options глобальные флаги
type options struct {
	addr     string
	token    string
	adminKey string
	timeout  time.Duration
	json     bool
}

func (o *options) client() *Client {
	return NewClient(o.addr, o.token, o.adminKey, o.timeout)
}

// NewRootCmd собирает дерево команд
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "reportctl",
		Short: "Operator CLI for the workshop report service",
		Long: `reportctl talks to a running report service over its HTTP API.

It generates reports, downloads artifacts before they expire, lists the
report history of an owner, triggers the reaper and mints development tokens.

Examples:
  reportctl types
  reportctl generate --type INVENTORY_STOCK --format csv --start 2024-01-01 --end 2024-01-31
  reportctl generate --type SALES --format pdf --period LAST_MONTH -o ./out
  reportctl download inventory_stock-csv-0190... -o stock.csv
  reportctl history --owner alice --admin-key $KEY
  reportctl cleanup --admin-key $KEY
  reportctl token --subject alice --secret $WORKSHOP_AUTH_JWT_SECRET`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.addr, "addr", envOr("WORKSHOP_REPORTS_ADDR", "http://localhost:8080"), "Report service base URL")
	pf.StringVar(&opts.token, "token", os.Getenv("WORKSHOP_REPORTS_TOKEN"), "Bearer token")
	pf.StringVar(&opts.adminKey, "admin-key", os.Getenv("WORKSHOP_ADMIN_KEY"), "Administrator key (X-Admin-Key)")
	pf.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "Request timeout")
	pf.BoolVar(&opts.json, "json", false, "Output in JSON format")

	root.AddCommand(
		newGenerateCmd(opts),
		newDownloadCmd(opts),
		newHistoryCmd(opts),
		newDeleteCmd(opts),
		newCleanupCmd(opts),
		newTypesCmd(opts),
		newTokenCmd(),
	)
	return root
}

// Execute запускает reportctl
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode 2 для ошибок запроса, 1 для остальных
func exitCode(err error) int {
	if apperror.IsValidation(err) || apperror.Is(err, apperror.CodeNotFoundOrExpired) {
		return 2
	}
	return 1
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var errMissingArg = errors.New("missing required argument")
