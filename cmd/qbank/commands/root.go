// Package commands implements the CLI commands for qbank.
package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "qbank",
	Short: "Ingest captured board-exam questions into a local question bank",
	Long: `qbank turns captured question pages into clean, deduplicated records.

Pages are captured by the browser userscript and posted to "qbank serve",
which writes html/json file pairs to the extractions directory. "qbank ingest"
imports those pairs into SQLite, optionally asking an LLM for the question
context and stem, and groups multi-part questions captured close together.

Examples:
  # Import everything in ./extractions
  qbank ingest

  # Import and keep watching for new captures, extracting with a local model
  qbank ingest --watch --llm

  # Receive captures and ingest them as they arrive
  qbank serve --ingest

  # Browse
  qbank questions list --roots
  qbank questions show 42 --format markdown`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default $HOME/.qbank.yaml or ./.qbank.yaml)")
	flags.Bool("debug", false, "enable debug logging")
	flags.BoolP("quiet", "q", false, "only log errors")
	flags.Bool("log-json", false, "log as JSON")
	flags.String("database", "", "SQLite database path (default qbank.db)")

	_ = viper.BindPFlag("config", flags.Lookup("config"))
	_ = viper.BindPFlag("debug", flags.Lookup("debug"))
	_ = viper.BindPFlag("quiet", flags.Lookup("quiet"))
	_ = viper.BindPFlag("log.json", flags.Lookup("log-json"))
	_ = viper.BindPFlag("database", flags.Lookup("database"))
}

func setDefaults() {
	viper.SetDefault("database", "qbank.db")
	viper.SetDefault("extractions_dir", "extractions")
	viper.SetDefault("media_root", "media")

	viper.SetDefault("media.backend", "fs")
	viper.SetDefault("media.path_style", false)

	viper.SetDefault("llm.enabled", false)
	viper.SetDefault("llm.provider", "chat")
	viper.SetDefault("llm.timeout", "60s")
	viper.SetDefault("llm.temperature", 0.1)
	viper.SetDefault("llm.max_tokens", 4096)
	viper.SetDefault("llm.max_content_size", "0")
	viper.SetDefault("llm.prompt_file", "prompts/minimal_question.md")
	viper.SetDefault("llm.requests_per_minute", 0)

	viper.SetDefault("ingest.batch_policy", "first")
	viper.SetDefault("ingest.parse_legacy", false)
	viper.SetDefault("ingest.update", false)

	viper.SetDefault("grouping.enabled", true)
	viper.SetDefault("grouping.window", "5m")

	viper.SetDefault("serve.addr", "127.0.0.1:5000")
	viper.SetDefault("serve.ingest", false)

	viper.SetDefault("log.persist", false)
}

func initConfig() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	setDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(".qbank")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("QBANK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Also check common API key env vars
	_ = viper.BindEnv("llm.api_key", "QBANK_LLM_API_KEY", "LLM_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY")

	// Read config file (ignore error if not found)
	_ = viper.ReadInConfig()
}

// bindFlags binds command flags to config keys when the command runs.
// Several commands share keys, so binding in init would let the last
// registered command win.
func bindFlags(bindings map[string]string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		for key, name := range bindings {
			if err := viper.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
				return fmt.Errorf("binding --%s: %w", name, err)
			}
		}
		return nil
	}
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		logError("%v", err)
	}
	return err
}

// logError prints an error message to stderr.
func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

// logInfo prints an info message to stderr (unless quiet mode).
func logInfo(format string, args ...any) {
	if !viper.GetBool("quiet") {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}
