package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGemini(t *testing.T) {
	t.Run("should default to the OpenAI compatible endpoint", func(t *testing.T) {
		g := newGemini(Settings{Model: "gemini-2.0-flash", APIKey: "g-test"}, testOptions().withDefaults())
		assert.Equal(t, GeminiOpenAIBaseURL, g.settings.BaseURL)
	})

	t.Run("should keep an explicit base url", func(t *testing.T) {
		g := newGemini(Settings{Model: "gemini-2.0-flash", APIKey: "g-test", BaseURL: "http://gemini.internal/"}, testOptions().withDefaults())
		assert.Equal(t, "http://gemini.internal/", g.settings.BaseURL)
	})
}

func TestGeminiProvider_Chat(t *testing.T) {
	t.Run("should speak the OpenAI wire format", func(t *testing.T) {
		rec := &bodyRecorder{}
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
			assert.Equal(t, "Bearer g-test", r.Header.Get("Authorization"))
			rec.record(t, r)

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(textCompletion))
		}))
		t.Cleanup(srv.Close)

		opts := testOptions()
		opts.HTTPClient = srv.Client()
		p, err := New(Gemini, Settings{Model: "gemini-2.0-flash", APIKey: "g-test", BaseURL: srv.URL + "/"}, opts)
		require.NoError(t, err)

		resp, err := p.Chat(context.Background(), ChatRequest{Message: "how many users?", SessionID: "s1"})
		require.NoError(t, err)

		assert.Equal(t, Gemini, p.Name())
		assert.Equal(t, "There are 2 users in master.", resp.Text)
		assert.Equal(t, FinishStop, resp.FinishReason)
		assert.Equal(t, "gemini-2.0-flash", rec.body(0)["model"])
	})
}
