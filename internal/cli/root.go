// Package cli implements the audityzer command line.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "0.1.0"

// NewRootCmd builds the command tree over v. Flags are bound to v keys, and
// every key can also be set with an AUDITYZER_ environment variable, e.g.
// AUDITYZER_ANALYSIS_ENDPOINT.
func NewRootCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "audityzer",
		Short:         "Smart contract audit tracking",
		Long:          "Audityzer submits smart contracts for audit, tracks scan jobs, opens tickets for critical findings and compares scans of the same contract.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringP("config", "c", "", "Path to audityzer.yaml or a directory containing it")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("log-format", "", "Log format: text or json")
	flags.String("endpoint", "", "Audit service URL (http analysis mode)")
	flags.String("mode", "", "Analysis mode: http or queue")
	flags.String("redis-url", "", "Redis URL for queue mode and queue notifications")
	_ = v.BindPFlag("config", flags.Lookup("config"))
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("log.format", flags.Lookup("log-format"))
	_ = v.BindPFlag("analysis.endpoint", flags.Lookup("endpoint"))
	_ = v.BindPFlag("analysis.mode", flags.Lookup("mode"))
	_ = v.BindPFlag("redis.url", flags.Lookup("redis-url"))

	v.SetEnvPrefix("AUDITYZER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	cmd.AddCommand(newServeCmd(v))
	cmd.AddCommand(newScanCmd(v))
	cmd.AddCommand(newWorkerCmd(v))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the command line and exits non-zero on error.
func Execute() {
	if err := NewRootCmd(viper.New()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "audityzer %s\n", Version)
		},
	}
}
