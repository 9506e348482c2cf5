package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberwake/relaygate/src/rest"
	"github.com/emberwake/relaygate/src/structs"
	"github.com/emberwake/relaygate/src/utils"
)

type webhookCall struct {
	path string
	body structs.WebhookMessage
}

func testPoster(t *testing.T, webhookID, webhookToken string) (*Poster, chan webhookCall) {
	t.Helper()
	calls := make(chan webhookCall, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg structs.WebhookMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		calls <- webhookCall{path: r.URL.RequestURI(), body: msg}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(server.Close)

	cfg := utils.AppConfig{
		BotToken:     "tok",
		APIBaseURL:   server.URL,
		APIVersion:   10,
		WebhookID:    webhookID,
		WebhookToken: webhookToken,
		HTTPTimeout:  5 * time.Second,
	}
	client := rest.NewClient(cfg, zerolog.Nop())
	return NewPoster(cfg, client, zerolog.Nop()), calls
}

func TestPostChatImpersonatesPlayer(t *testing.T) {
	poster, calls := testPoster(t, "42", "secret")

	err := poster.PostChat(context.Background(), "Steve", "https://cdn.example/steve.png", "hello from the game")
	require.NoError(t, err)

	call := <-calls
	assert.Equal(t, "/v10/webhooks/42/secret?wait=false", call.path)
	assert.Equal(t, "Steve", call.body.Username)
	assert.Equal(t, "https://cdn.example/steve.png", call.body.AvatarURL)
	assert.Equal(t, "hello from the game", call.body.Content)
	require.NotNil(t, call.body.AllowedMentions)
	assert.Empty(t, call.body.AllowedMentions.Parse, "mentions must be suppressed")
}

func TestAnnounceStartedIncludesAddress(t *testing.T) {
	poster, calls := testPoster(t, "42", "secret")

	poster.AnnounceStarted(context.Background(), "play.example.com")

	call := <-calls
	require.Len(t, call.body.Embeds, 1)
	embed := call.body.Embeds[0]
	assert.Equal(t, "The server is now open!", embed.Description)
	assert.Equal(t, colorGreen, embed.Color)
	require.Len(t, embed.Fields, 1)
	assert.Equal(t, "Address", embed.Fields[0].Name)
	assert.Equal(t, "play.example.com", embed.Fields[0].Value)
}

func TestAnnounceStoppedEmbed(t *testing.T) {
	poster, calls := testPoster(t, "42", "secret")

	poster.AnnounceStopped(context.Background())

	call := <-calls
	require.Len(t, call.body.Embeds, 1)
	assert.Equal(t, "The server has closed.", call.body.Embeds[0].Description)
	assert.Equal(t, colorRed, call.body.Embeds[0].Color)
}

func TestUnconfiguredPosterSkipsQuietly(t *testing.T) {
	poster, calls := testPoster(t, "", "")

	assert.False(t, poster.Configured())
	require.NoError(t, poster.PostChat(context.Background(), "Steve", "", "hi"))
	poster.AnnounceStarted(context.Background(), "")

	select {
	case call := <-calls:
		t.Fatalf("unexpected webhook call: %+v", call)
	case <-time.After(50 * time.Millisecond):
	}
}
