package llm

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withEnv(t *testing.T, key, value string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	require.NoError(t, os.Setenv(key, value))
	t.Cleanup(func() {
		if had {
			os.Setenv(key, old)
		} else {
			os.Unsetenv(key)
		}
	})
}

func TestSelectClientPrefersAnthropicWhenBothAvailable(t *testing.T) {
	withEnv(t, "ANTHROPIC_API_KEY", "test-key")
	withEnv(t, "OPENAI_API_KEY", "test-key")

	a := NewAnthropicClient(AnthropicConfig{APIKey: "test-key"}, nil)
	o := NewOpenAIClient(OpenAIConfig{APIKey: "test-key"}, nil)

	_, name, err := SelectClient(a, o)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", name)
}

func TestSelectClientFallsBackToOpenAI(t *testing.T) {
	os.Unsetenv("ANTHROPIC_API_KEY")
	withEnv(t, "OPENAI_API_KEY", "test-key")

	o := NewOpenAIClient(OpenAIConfig{APIKey: "test-key"}, nil)

	_, name, err := SelectClient(nil, o)
	require.NoError(t, err)
	assert.Equal(t, "openai", name)
}

func TestSelectClientErrorsWhenNeitherAvailable(t *testing.T) {
	os.Unsetenv("ANTHROPIC_API_KEY")
	os.Unsetenv("OPENAI_API_KEY")

	_, _, err := SelectClient(nil, nil)
	assert.Error(t, err)
}
