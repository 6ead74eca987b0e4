package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Assistant AssistantConfig `json:"assistant"`
	OpenAI    OpenAIConfig    `json:"openai"`
	Auth      AuthConfig      `json:"auth"`
}

type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslmode"`
}

// AssistantConfig configures the portal's client side of the assistant
// service.
type AssistantConfig struct {
	// BaseURL is where the assistant service listens.
	BaseURL string `json:"base_url" mapstructure:"base_url"`
	// Token is the service-to-service bearer credential.
	Token string `json:"token,omitempty"`
	// MutatingTools is the allow-list of tool names whose successful
	// results trigger data-changed notifications.
	MutatingTools []string `json:"mutating_tools" mapstructure:"mutating_tools"`
	// Context is free-form background sent with every chat message.
	Context string `json:"context,omitempty"`
}

// OpenAIConfig configures the assistant service's upstream model.
type OpenAIConfig struct {
	APIKey string `json:"api_key,omitempty" mapstructure:"api_key"`
	Model  string `json:"model"`
}

type AuthConfig struct {
	JWTSecret string `json:"jwt_secret" mapstructure:"jwt_secret"`
	Issuer    string `json:"issuer"`
}

// Load reads config.json from the working directory, ./config, or
// ~/.caseflow, with CASEFLOW_* environment overrides. A missing config
// file is not an error: defaults plus environment carry a dev setup.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	if homeDir, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(filepath.Join(homeDir, ".caseflow"))
	}

	setDefaults()

	viper.SetEnvPrefix("CASEFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "caseflow")
	viper.SetDefault("database.database", "caseflow")
	viper.SetDefault("database.sslmode", "disable")

	viper.SetDefault("assistant.base_url", "http://localhost:8090")
	viper.SetDefault("assistant.mutating_tools", []string{
		"create_requirement",
		"update_requirement",
		"delete_requirement",
		"attach_evidence",
	})

	viper.SetDefault("openai.model", "gpt-4o-mini")

	viper.SetDefault("auth.issuer", "caseflow")
}
