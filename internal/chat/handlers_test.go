package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/societynet/societychat/internal/identity"
)

func newTestServer(t *testing.T) (*fixture, *identity.Manager, *httptest.Server) {
	t.Helper()
	f := newFixture(t)
	idm := identity.NewManager("test-secret")

	router := mux.NewRouter()
	NewHandler(f.svc, idm, zap.NewNop()).Register(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return f, idm, server
}

func getHistory(t *testing.T, server *httptest.Server, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, server.URL+"/api/chat/"+testRoom+"/history", nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestHistoryRequiresToken(t *testing.T) {
	_, _, server := newTestServer(t)

	resp := getHistory(t, server, "")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "unauthorized", body["code"])
}

func TestHistoryRejectsBadToken(t *testing.T) {
	_, _, server := newTestServer(t)

	resp := getHistory(t, server, "not-a-token")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHistoryReturnsMessagesAndSettings(t *testing.T) {
	f, idm, server := newTestServer(t)

	alice := resident("Alice")
	f.register(alice)
	_, err := f.svc.Send(context.Background(), alice, SendRequest{Room: testRoom, Body: "hello block B"})
	require.NoError(t, err)

	token, err := idm.Generate(alice.UserID, alice.Name, alice.Role, time.Hour)
	require.NoError(t, err)

	resp := getHistory(t, server, token)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var history History
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&history))
	require.Len(t, history.Messages, 1)
	assert.Equal(t, "hello block B", history.Messages[0].Body)
	assert.Equal(t, "Alice", history.Messages[0].Author)
	assert.False(t, history.Settings.AdminsOnly)
}
