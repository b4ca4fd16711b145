package modelprovider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve_KnownModels(t *testing.T) {
	cases := []struct {
		name     string
		provider Provider
		model    string
	}{
		{"ChatGPT", ProviderOpenAI, "gpt-3.5-turbo"},
		{"GPT-4", ProviderOpenAI, "gpt-4"},
		{"GPT-4o", ProviderOpenAI, "gpt-4o"},
		{"GPT-4o-mini", ProviderOpenAI, "gpt-4o-mini"},
		{"Gemini", ProviderGoogle, "gemini-pro"},
		{"Gemini-Flash", ProviderGoogle, "gemini-1.5-flash"},
		{"Gemini-2.5-Flash", ProviderGoogle, "gemini-2.5-flash"},
		{"Gemini-Pro", ProviderGoogle, "gemini-1.5-pro"},
	}
	for _, tc := range cases {
		entry := resolve(tc.name)
		assert.Equal(t, tc.provider, entry.provider, tc.name)
		assert.Equal(t, tc.model, entry.model, tc.name)
	}
}

func TestResolve_UnknownFallsBackToDefault(t *testing.T) {
	entry := resolve("some-unknown-model")
	assert.Equal(t, defaultEntry, entry)
}
