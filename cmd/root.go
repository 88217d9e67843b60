package cmd

import (
	"errors"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app       = "bpmatch"
	envPrefix = "BPMATCH"
)

type Config struct {
	Gmail      *GmailConfig      `mapstructure:"gmail"`
	Harvest    *HarvestConfig    `mapstructure:"harvest"`
	Store      *StoreConfig      `mapstructure:"store"`
	Classifier *ClassifierConfig `mapstructure:"classifier"`
	AI         *AIConfig         `mapstructure:"ai"`
	Server     *ServerConfig     `mapstructure:"server"`
}

type GmailConfig struct {
	CredentialsFile string `mapstructure:"credentials-file"`
	TokenFile       string `mapstructure:"token-file"`
	User            string `mapstructure:"user"`
	Query           string `mapstructure:"query"`
	Concurrency     int    `mapstructure:"concurrency"`
}

type HarvestConfig struct {
	WindowDays int           `mapstructure:"window-days"`
	PageSize   int           `mapstructure:"page-size"`
	MaxPages   int           `mapstructure:"max-pages"`
	Interval   time.Duration `mapstructure:"interval"`
	LogDir     string        `mapstructure:"log-dir"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type ClassifierConfig struct {
	JobKeywords       []string `mapstructure:"job-keywords"`
	CandidateKeywords []string `mapstructure:"candidate-keywords"`
}

type AIConfig struct {
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
	OpenAI   *OpenAIConfig `mapstructure:"openai"`
}

type GeminiConfig struct {
	APIKey       string `mapstructure:"api-key"`
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

type OpenAIConfig struct {
	APIKey       string `mapstructure:"api-key"`
	APIKeyFile   string `mapstructure:"api-key-file"`
	BaseURL      string `mapstructure:"base-url"`
	Model        string `mapstructure:"model"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "bpmatch harvests business-partner mail, extracts project and technician offers and matches them",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is bpmatch.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	setDefaults()
}

// setDefaults registers every key so AutomaticEnv can override it during Unmarshal.
func setDefaults() {
	viper.SetDefault("gmail.credentials-file", "credentials.json")
	viper.SetDefault("gmail.token-file", "token.json")
	viper.SetDefault("gmail.user", "me")
	viper.SetDefault("gmail.query", "")
	viper.SetDefault("gmail.concurrency", 10)

	viper.SetDefault("harvest.window-days", 14)
	viper.SetDefault("harvest.page-size", 100)
	viper.SetDefault("harvest.max-pages", 0)
	viper.SetDefault("harvest.interval", 30*time.Minute)
	viper.SetDefault("harvest.log-dir", "logs")

	viper.SetDefault("store.driver", "sqlite")
	viper.SetDefault("store.dsn", "bpmatch.db")

	viper.SetDefault("classifier.job-keywords", []string{})
	viper.SetDefault("classifier.candidate-keywords", []string{})

	viper.SetDefault("ai.provider", "gemini")
	viper.SetDefault("ai.gemini.api-key", "")
	viper.SetDefault("ai.gemini.api-key-file", "")
	viper.SetDefault("ai.gemini.model", "")
	viper.SetDefault("ai.gemini.max-retries", 3)
	viper.SetDefault("ai.gemini.max-log-length", 200)
	viper.SetDefault("ai.openai.api-key", "")
	viper.SetDefault("ai.openai.api-key-file", "")
	viper.SetDefault("ai.openai.base-url", "")
	viper.SetDefault("ai.openai.model", "")
	viper.SetDefault("ai.openai.max-log-length", 200)

	viper.SetDefault("server.listen", ":8080")
}

func initConfig() {
	// .env is optional and never overrides variables already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading .env: %v", err)
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// Running on defaults and environment is fine unless a file was asked for explicitly.
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}
