package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load initializes the configuration from file and environment variables.
// Without cfgFile, config.yaml is looked up in the working directory; its
// absence is not an error.
func Load(cfgFile string) error {
	// a missing .env is fine
	_ = godotenv.Load()

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("BENCHHIST")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	SetDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && cfgFile == "" {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	return nil
}

// SetDefaults registers the default value of every known key.
func SetDefaults() {
	viper.SetDefault("verbose", false)
	viper.SetDefault("log.file", "")

	viper.SetDefault("store.type", "file")
	// empty selects the backend default: benchmark-data.json or .benchhist.db
	viper.SetDefault("store.path", "")
	viper.SetDefault("store.dsn", "")
	viper.SetDefault("store.format", "")
	viper.SetDefault("store.repo_url", "")
	viper.SetDefault("store.retries", 3)
	viper.SetDefault("store.retry_delay", "200ms")

	viper.SetDefault("regression.threshold", 1.0)
	viper.SetDefault("regression.policy", "plain")
	viper.SetDefault("regression.sigma", 1.0)
	viper.SetDefault("regression.higher_is_better", []string{})
	viper.SetDefault("regression.lower_is_better", []string{})

	viper.SetDefault("serve.addr", ":8080")

	// Notification Defaults
	slackEnabled := os.Getenv("SLACK_BOT_USER_TOKEN") != "" || os.Getenv("SLACK_WEBHOOK_URL") != ""
	viper.SetDefault("notifications.slack.enabled", slackEnabled)
	viper.SetDefault("notifications.slack.channel", "#benchmarks")
	viper.SetDefault("notifications.slack.events.on_regression", true)
	viper.SetDefault("notifications.slack.events.on_improvement", false)

	viper.SetDefault("notifications.discord.enabled", os.Getenv("DISCORD_WEBHOOK_URL") != "")
	viper.SetDefault("notifications.discord.events.on_regression", true)
	viper.SetDefault("notifications.discord.events.on_improvement", false)
}
