package provider

// GeminiOpenAIBaseURL is Gemini's OpenAI-compatible endpoint.
const GeminiOpenAIBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

// newGemini talks to Google Gemini through its OpenAI-compatible endpoint.
func newGemini(s Settings, opts Options) *openAICompleter {
	if s.BaseURL == "" {
		s.BaseURL = GeminiOpenAIBaseURL
	}
	return newOpenAI(s, opts)
}
