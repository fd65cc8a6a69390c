// Package cmd implements the canvas-fetch command tree.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/campusops/canvas-client/pkg/logging"
)

var cliVersion = "dev"

// SetVersion records the build version for the version command.
func SetVersion(v string) {
	cliVersion = v
}

var rootCmd = &cobra.Command{
	Use:   "canvas-fetch",
	Short: "Fetch paginated Canvas collections at full throttle",
	Long: `canvas-fetch pulls every page of a paginated Canvas REST endpoint
through the rate-limited scheduling engine: concurrent batches for
numeric pagination, strict sequencing for bookmark pagination, and
automatic backoff on rate-limit rejections.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg := logging.DefaultConfig()
		cfg.Pretty = viper.GetBool("pretty")
		logging.Setup(cfg)
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("base-url", "", "Canvas instance root, e.g. https://school.instructure.com")
	rootCmd.PersistentFlags().String("token", "", "Canvas API bearer token")
	rootCmd.PersistentFlags().Bool("pretty", false, "human-readable log output")
	rootCmd.PersistentFlags().Int("max-concurrent", 10, "maximum in-flight requests")
	rootCmd.PersistentFlags().Duration("min-spacing", 0, "minimum gap between request starts (default 200ms)")

	viper.BindPFlag("base_url", rootCmd.PersistentFlags().Lookup("base-url"))
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
	viper.BindPFlag("pretty", rootCmd.PersistentFlags().Lookup("pretty"))
	viper.BindPFlag("max_concurrent", rootCmd.PersistentFlags().Lookup("max-concurrent"))
	viper.BindPFlag("min_spacing", rootCmd.PersistentFlags().Lookup("min-spacing"))

	// CANVAS_BASE_URL, CANVAS_TOKEN, ...
	viper.SetEnvPrefix("canvas")
	viper.AutomaticEnv()
}
