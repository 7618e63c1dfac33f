package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig
	Logging       LoggingConfig
	Cors          CorsConfig
	GoogleService GoogleServiceConfig
	Handlers      HandlersConfig
	LLM           LLMConfigs
}

type ServerConfig struct {
	Port int
	// MaxUploadMemory is the part of a multipart body kept in memory before
	// spilling to temp files. It does not limit the upload size.
	MaxUploadMemory int64
}

type LoggingConfig struct {
	Debug bool
}

// CorsConfig defaults to allowing every origin with credentials. Development only.
type CorsConfig struct {
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	AllowCredentials bool
}

type GoogleServiceConfig struct {
	ProjectId string
	JsonKey   string
}

type HandlersConfig struct {
	ChatHandler ChatHandlerConfig
}

type ChatHandlerConfig struct {
	TextModel          string
	VisionModel        string
	PromptSystemPrompt string
	UploadSystemPrompt string
}

type LLMConfigs struct {
	Provider string
	OpenAI   OpenAIConfig
	Gemini   GeminiConfig
	Claude   ClaudeConfig
}

type OpenAIConfig struct {
	Key     string
	BaseURL string
}

type GeminiConfig struct {
	Key string
}

type ClaudeConfig struct {
	Key       string
	MaxTokens int
}

var envBindings = map[string]string{
	"llm.openai.key": "OPENAI_API_KEY",
	"llm.gemini.key": "GEMINI_API_KEY",
	"llm.claude.key": "ANTHROPIC_API_KEY",
	"server.port":    "PORT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.maxuploadmemory", 32<<20)

	v.SetDefault("logging.debug", false)

	v.SetDefault("cors.alloworigins", []string{"*"})
	v.SetDefault("cors.allowmethods", []string{"GET", "POST"})
	v.SetDefault("cors.allowheaders", []string{"*"})
	v.SetDefault("cors.allowcredentials", true)

	v.SetDefault("handlers.chathandler.textmodel", "gpt-3.5-turbo")
	v.SetDefault("handlers.chathandler.visionmodel", "o4-mini")
	v.SetDefault("handlers.chathandler.promptsystemprompt", "You are a helpful software development assistant.")
	v.SetDefault("handlers.chathandler.uploadsystemprompt", "You are a helpful assistant.")

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.openai.key", "")
	v.SetDefault("llm.openai.baseurl", "")
	v.SetDefault("llm.gemini.key", "")
	v.SetDefault("llm.claude.key", "")
	v.SetDefault("llm.claude.maxtokens", 1024)

	v.SetDefault("googleservice.projectid", "")
	v.SetDefault("googleservice.jsonkey", "")
}

// LoadConfig reads <configName>.yaml from configPaths (the working directory
// when none are given), layering environment variables and a local .env file
// on top. A missing config file is not an error.
func LoadConfig(configName string, configPaths ...string) (*Config, error) {
	var config Config

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	if len(configPaths) == 0 {
		configPaths = []string{"."}
	}
	for _, path := range configPaths {
		v.AddConfigPath(path)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("error binding %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	return &config, nil
}
