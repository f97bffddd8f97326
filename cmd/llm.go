package cmd

import (
	"os"

	"github.com/spf13/viper"

	"github.com/joescharf/vibetest/internal/llm"
)

// newLLMClient builds an Anthropic client from config, or nil when no
// API key is available. Callers degrade to non-LLM behavior on nil.
func newLLMClient() *llm.Client {
	apiKey := viper.GetString("anthropic.api_key")
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil
	}
	return llm.NewClient(apiKey, viper.GetString("anthropic.model"))
}
