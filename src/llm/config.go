package llm

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	OpenAIAPIKey   string        `envconfig:"OPENAI_API_KEY"`
	OpenAIModel    string        `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	OpenAIBaseURL  string        `envconfig:"OPENAI_BASE_URL"`
	DeepSeekAPIKey string        `envconfig:"DEEPSEEK_API_KEY"`
	DeepSeekModel  string        `envconfig:"DEEPSEEK_MODEL" default:"deepseek-chat"`
	HTTPURL        string        `envconfig:"LLM_HTTP_URL"`
	HTTPAPIKey     string        `envconfig:"LLM_HTTP_API_KEY"`
	HTTPModel      string        `envconfig:"LLM_HTTP_MODEL" default:"default"`
	DefaultBackend string        `envconfig:"LLM_DEFAULT_BACKEND" default:"openai"`
	CEOBackend     string        `envconfig:"CEO_BACKEND" default:"openai"`
	RequestTimeout time.Duration `envconfig:"LLM_TIMEOUT" default:"30s"`
	MaxTokens      int           `envconfig:"LLM_MAX_TOKENS" default:"800"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
