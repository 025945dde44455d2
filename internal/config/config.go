// Package config reads the engine settings from the environment and the .env file.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/hugr-lab/url-engine/pkg/formats"
	"github.com/hugr-lab/url-engine/pkg/hostfilter"
	"github.com/hugr-lab/url-engine/pkg/storages"
	"github.com/hugr-lab/url-engine/pkg/transport"
)

type Config struct {
	Bind               string
	Debug              bool
	LogFormat          string
	TablesFile         string
	RemoteHosts        []string
	RemoteHostPatterns []string
	Settings           storages.Settings
}

// Init loads the .env file and sets the defaults, the environment overrides them.
func Init() {
	_ = godotenv.Overload()
	viper.SetDefault("BIND", ":15100")
	viper.SetDefault("DEBUG", false)
	viper.SetDefault("LOG_FORMAT", "console")
	viper.SetDefault("TABLES_FILE", "")
	viper.SetDefault("REMOTE_HOSTS", "")
	viper.SetDefault("REMOTE_HOST_PATTERNS", "")
	viper.SetDefault("MAX_HTTP_GET_REDIRECTS", 0)
	viper.SetDefault("HTTP_CONNECTION_TIMEOUT", time.Second)
	viper.SetDefault("HTTP_SEND_TIMEOUT", 1800*time.Second)
	viper.SetDefault("HTTP_RECEIVE_TIMEOUT", 1800*time.Second)
	viper.SetDefault("MAX_BLOCK_SIZE", formats.DefaultMaxBlockSize)
	viper.SetDefault("BUFFER_SIZE", transport.DefaultBufferSize)
	viper.SetDefault("COMPRESSION_LEVEL", 0)
	viper.SetDefault("INPUT_FORMAT_SKIP_UNKNOWN_FIELDS", false)
	viper.SetDefault("FORMAT_CSV_DELIMITER", ",")
	viper.AutomaticEnv()
}

func Load() Config {
	settings := storages.DefaultSettings()
	settings.MaxRedirects = viper.GetInt("MAX_HTTP_GET_REDIRECTS")
	settings.Timeouts = transport.Timeouts{
		Connect: viper.GetDuration("HTTP_CONNECTION_TIMEOUT"),
		Send:    viper.GetDuration("HTTP_SEND_TIMEOUT"),
		Receive: viper.GetDuration("HTTP_RECEIVE_TIMEOUT"),
	}
	settings.MaxBlockSize = viper.GetInt("MAX_BLOCK_SIZE")
	settings.BufferSize = viper.GetInt("BUFFER_SIZE")
	settings.CompressionLevel = viper.GetInt("COMPRESSION_LEVEL")
	settings.SkipUnknownFields = viper.GetBool("INPUT_FORMAT_SKIP_UNKNOWN_FIELDS")
	if d := []rune(viper.GetString("FORMAT_CSV_DELIMITER")); len(d) > 0 {
		settings.CSVDelimiter = d[0]
	}
	return Config{
		Bind:               viper.GetString("BIND"),
		Debug:              viper.GetBool("DEBUG"),
		LogFormat:          viper.GetString("LOG_FORMAT"),
		TablesFile:         viper.GetString("TABLES_FILE"),
		RemoteHosts:        List(viper.GetString("REMOTE_HOSTS")),
		RemoteHostPatterns: List(viper.GetString("REMOTE_HOST_PATTERNS")),
		Settings:           settings,
	}
}

func (c Config) HostFilter() (*hostfilter.Filter, error) {
	return hostfilter.New(c.RemoteHosts, c.RemoteHostPatterns)
}

// SetupLogger configures the global logger, the console writer goes to stderr.
func (c Config) SetupLogger() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if c.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if c.LogFormat == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

// List splits the comma separated value.
func List(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
