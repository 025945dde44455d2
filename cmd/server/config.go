package main

import (
	"github.com/spf13/viper"

	"github.com/hugr-lab/url-engine/internal/config"
)

type Config struct {
	config.Config

	Cors CorsConfig
}

func init() {
	config.Init()
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "")
	viper.SetDefault("CORS_ALLOWED_HEADERS", "")
	viper.SetDefault("CORS_ALLOWED_METHODS", "")
}

func loadConfig() Config {
	return Config{
		Config: config.Load(),
		Cors: CorsConfig{
			CorsAllowedOrigins: config.List(viper.GetString("CORS_ALLOWED_ORIGINS")),
			CorsAllowedHeaders: config.List(viper.GetString("CORS_ALLOWED_HEADERS")),
			CorsAllowedMethods: config.List(viper.GetString("CORS_ALLOWED_METHODS")),
		},
	}
}
