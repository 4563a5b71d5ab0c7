package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"codeberg.org/snonux/lexigap/internal"
)

// CreateRootCommand creates and configures the root cobra command
func CreateRootCommand(flags *Flags) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lexigap [file]",
		Short: "Incremental reading translator",
		Long: `lexigap translates the parts of a text a reader is likely to stumble on,
as the text scrolls into view. Easy passages are filtered locally, hard
ones are batched to a translation provider, and results are cached by
content so nothing is translated twice.

Examples:
  lexigap --document book.txt     # Read a text file with inline translation
  lexigap --serve                 # Run the message endpoint for a reader UI
  lexigap --quiz                  # Calibrate the vocabulary estimate
  lexigap --stats                 # Show cache effectiveness`,
		Args:    cobra.MaximumNArgs(1),
		Version: internal.Version,
	}

	setupFlags(rootCmd, flags)

	return rootCmd
}

func setupFlags(cmd *cobra.Command, flags *Flags) {
	home, _ := os.UserHomeDir()
	defaultStateDir := filepath.Join(home, ".local", "state", "lexigap")

	// Global flags
	cmd.PersistentFlags().StringVar(&flags.CfgFile, "config", "", "config file (default is $HOME/.lexigap.yaml)")

	// Mode selection
	cmd.Flags().BoolVar(&flags.Serve, "serve", false, "Run the HTTP message endpoint")
	cmd.Flags().StringVar(&flags.Listen, "listen", flags.Listen, "Listen address for --serve")
	cmd.Flags().StringVar(&flags.Document, "document", "", "Read a text file with incremental translation")
	cmd.Flags().BoolVar(&flags.Quiz, "quiz", false, "Run the vocabulary calibration quiz")
	cmd.Flags().BoolVar(&flags.Stats, "stats", false, "Show cache statistics")
	cmd.Flags().BoolVar(&flags.ClearCache, "clear-cache", false, "Clear the translation cache")
	cmd.Flags().BoolVar(&flags.ListModels, "list-models", false, "List available OpenAI chat models for the current API key")

	// Translation flags
	cmd.Flags().StringVar(&flags.Provider, "provider", flags.Provider, "Translation provider: openai or gemini")
	cmd.Flags().StringVar(&flags.Model, "model", "", "Model override for the selected provider")
	cmd.Flags().StringVar(&flags.Mode, "mode", flags.Mode, "Translation granularity: word, sentence or full")
	cmd.Flags().StringVar(&flags.TargetLanguage, "target-lang", flags.TargetLanguage, "Language translations are written in")
	cmd.Flags().StringVar(&flags.NativeLanguage, "native-lang", flags.NativeLanguage, "Reader's native language (skips matching text)")

	// Scheduling flags
	cmd.Flags().IntVar(&flags.MaxUnits, "max-units", flags.MaxUnits, "Maximum paragraphs per provider call")
	cmd.Flags().IntVar(&flags.MaxChars, "max-chars", flags.MaxChars, "Maximum characters per provider call")
	cmd.Flags().IntVar(&flags.Concurrency, "concurrency", flags.Concurrency, "Concurrent provider calls")

	// Cache and state flags
	cmd.Flags().StringVar(&flags.StateDir, "state-dir", defaultStateDir, "Directory for the cache and profile database")
	cmd.Flags().IntVar(&flags.CacheCapacity, "cache-capacity", flags.CacheCapacity, "Maximum cached translations")
	cmd.Flags().DurationVar(&flags.CacheTTL, "cache-ttl", flags.CacheTTL, "Cached translation lifetime")

	// Filter flags
	cmd.Flags().Float64Var(&flags.MinHardRatio, "min-hard-ratio", 0, "Minimum share of hard words before a paragraph is translated (0 means any hard word)")

	// Bind flags to viper
	bindFlagsToViper(cmd)
}

func bindFlagsToViper(cmd *cobra.Command) {
	viper.BindPFlag("translate.provider", cmd.Flags().Lookup("provider"))
	viper.BindPFlag("translate.model", cmd.Flags().Lookup("model"))
	viper.BindPFlag("translate.mode", cmd.Flags().Lookup("mode"))
	viper.BindPFlag("translate.target_language", cmd.Flags().Lookup("target-lang"))
	viper.BindPFlag("translate.native_language", cmd.Flags().Lookup("native-lang"))
	viper.BindPFlag("scheduler.max_units", cmd.Flags().Lookup("max-units"))
	viper.BindPFlag("scheduler.max_chars", cmd.Flags().Lookup("max-chars"))
	viper.BindPFlag("scheduler.concurrency", cmd.Flags().Lookup("concurrency"))
	viper.BindPFlag("cache.capacity", cmd.Flags().Lookup("cache-capacity"))
	viper.BindPFlag("cache.ttl", cmd.Flags().Lookup("cache-ttl"))
	viper.BindPFlag("filter.min_hard_ratio", cmd.Flags().Lookup("min-hard-ratio"))
	viper.BindPFlag("state.directory", cmd.Flags().Lookup("state-dir"))
	viper.BindPFlag("server.listen", cmd.Flags().Lookup("listen"))
}

// ApplyConfig overlays values resolved through viper onto the flags
// struct, so config-file and environment settings reach the pipeline.
// The flag bindings keep precedence: an explicit flag wins over the
// config file, which wins over the flag default. Zero values are left
// alone so unbound keys cannot clobber defaults.
func ApplyConfig(flags *Flags) {
	if v := viper.GetString("translate.provider"); v != "" {
		flags.Provider = v
	}
	if v := viper.GetString("translate.model"); v != "" {
		flags.Model = v
	}
	if v := viper.GetString("translate.mode"); v != "" {
		flags.Mode = v
	}
	if v := viper.GetString("translate.target_language"); v != "" {
		flags.TargetLanguage = v
	}
	if v := viper.GetString("translate.native_language"); v != "" {
		flags.NativeLanguage = v
	}
	if v := viper.GetInt("scheduler.max_units"); v > 0 {
		flags.MaxUnits = v
	}
	if v := viper.GetInt("scheduler.max_chars"); v > 0 {
		flags.MaxChars = v
	}
	if v := viper.GetInt("scheduler.concurrency"); v > 0 {
		flags.Concurrency = v
	}
	if v := viper.GetInt("cache.capacity"); v > 0 {
		flags.CacheCapacity = v
	}
	if v := viper.GetDuration("cache.ttl"); v > 0 {
		flags.CacheTTL = v
	}
	if v := viper.GetFloat64("filter.min_hard_ratio"); v > 0 {
		flags.MinHardRatio = v
	}
	if v := viper.GetString("state.directory"); v != "" {
		flags.StateDir = v
	}
	if v := viper.GetString("server.listen"); v != "" {
		flags.Listen = v
	}
}

// InitConfig initializes viper configuration
func InitConfig(cfgFile string) {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error getting home directory: %v\n", err)
			return
		}

		// Search config in home directory with name ".lexigap" (without extension)
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".lexigap")
	}

	// Environment variables
	viper.SetEnvPrefix("LEXIGAP")
	viper.AutomaticEnv()

	// Read config file
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// GetOpenAIKey retrieves the OpenAI API key from environment or config
func GetOpenAIKey() string {
	// First check environment variable
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return key
	}

	// Then check config file
	return viper.GetString("translate.openai_key")
}

// GetGeminiKey retrieves the Gemini API key from environment or config
func GetGeminiKey() string {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		return key
	}
	return viper.GetString("translate.gemini_key")
}
