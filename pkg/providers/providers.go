// Package providers implements the generation service over the OpenAI and
// Gemini APIs. Each client takes a system context plus the conversation so
// far and returns the next completion.
package providers

// ProviderParams holds connection settings shared by all providers.
type ProviderParams struct {
	BaseURL string
	APIKey  string
}

// ProviderOption configures a provider client.
type ProviderOption func(*ProviderParams)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(baseURL string) ProviderOption {
	return func(p *ProviderParams) {
		p.BaseURL = baseURL
	}
}

// WithAPIKey sets the API key explicitly instead of reading the environment.
func WithAPIKey(apiKey string) ProviderOption {
	return func(p *ProviderParams) {
		p.APIKey = apiKey
	}
}
