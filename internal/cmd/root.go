package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/Iron-Ham/forkrunner/internal/config"
	"github.com/Iron-Ham/forkrunner/internal/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "forkrunner",
	Short: "Parallel test orchestrator with a shared retry budget",
	Long: `Forkrunner runs the same suite of test cases across several independent
pools of devices at once. Failing test cases are re-queued while a retry
budget shared by every pool lasts, and live progress is aggregated across
all pools.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command and prints any error it returns
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		printError(rootCmd.ErrOrStderr(), err)
	}
	return err
}

// printError writes err for the terminal. User facing errors are shown
// without the wrapping context that only helps when debugging.
func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %s\n", errors.UserMessage(err))
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/forkrunner/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("FORKRUNNER")
	// Replace dots with underscores for nested keys in env vars
	// e.g., FORKRUNNER_RETRY_TOTAL_QUOTA for retry.total_quota
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
