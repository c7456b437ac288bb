package builtin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pageloom/pageloom/internal/pluginapi"
)

func TestOAuth2BearerIgnoresRequestsWithoutBearerToken(t *testing.T) {
	p, err := NewOAuth2Bearer(map[string]string{
		"introspectURL": "http://example.invalid/introspect",
		"clientID":      "id",
		"clientSecret":  "secret",
		"tokenURL":      "http://example.invalid/token",
	})
	require.NoError(t, err)
	o := p.(*OAuth2Bearer)

	httpReq := httptest.NewRequest(http.MethodGet, "/a.html", nil)
	req := &pluginapi.Request{HTTP: httpReq, Metadata: make(map[string]string)}

	action, _, err := o.HandleRequest(context.Background(), &pluginapi.Context{}, req)
	require.NoError(t, err)
	require.Equal(t, pluginapi.ActionContinue, action)
}

func TestOAuth2BearerActiveTokenSetsMetadata(t *testing.T) {
	introspect := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"active":true,"sub":"alice","scope":"editor viewer"}`))
	}))
	defer introspect.Close()

	token := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok","token_type":"bearer","expires_in":3600}`))
	}))
	defer token.Close()

	p, err := NewOAuth2Bearer(map[string]string{
		"introspectURL": introspect.URL,
		"clientID":      "id",
		"clientSecret":  "secret",
		"tokenURL":      token.URL,
	})
	require.NoError(t, err)
	o := p.(*OAuth2Bearer)

	httpReq := httptest.NewRequest(http.MethodGet, "/a.html", nil)
	httpReq.Header.Set("Authorization", "Bearer sometoken")
	req := &pluginapi.Request{HTTP: httpReq, Metadata: make(map[string]string)}

	action, _, err := o.HandleRequest(context.Background(), &pluginapi.Context{}, req)
	require.NoError(t, err)
	require.Equal(t, pluginapi.ActionContinue, action)
	require.Equal(t, "alice", req.Metadata[pluginapi.MetaUser])
	require.Equal(t, "editor,viewer", req.Metadata[pluginapi.MetaRoles])
}

func TestOAuth2BearerInactiveTokenChallenges(t *testing.T) {
	introspect := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"active":false}`))
	}))
	defer introspect.Close()

	token := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok","token_type":"bearer","expires_in":3600}`))
	}))
	defer token.Close()

	p, err := NewOAuth2Bearer(map[string]string{
		"introspectURL": introspect.URL,
		"clientID":      "id",
		"clientSecret":  "secret",
		"tokenURL":      token.URL,
	})
	require.NoError(t, err)
	o := p.(*OAuth2Bearer)

	httpReq := httptest.NewRequest(http.MethodGet, "/a.html", nil)
	httpReq.Header.Set("Authorization", "Bearer sometoken")
	req := &pluginapi.Request{HTTP: httpReq, Metadata: make(map[string]string)}

	action, resp, err := o.HandleRequest(context.Background(), &pluginapi.Context{}, req)
	require.NoError(t, err)
	require.Equal(t, pluginapi.ActionRespond, action)
	require.Equal(t, http.StatusUnauthorized, resp.Status)
	require.Contains(t, resp.Header.Get("WWW-Authenticate"), "Bearer")
}

func TestNewOAuth2BearerRequiresCredentials(t *testing.T) {
	_, err := NewOAuth2Bearer(map[string]string{"introspectURL": "http://example.invalid"})
	require.Error(t, err)
}

func TestNewOAuth2BearerRequiresIntrospectURL(t *testing.T) {
	_, err := NewOAuth2Bearer(map[string]string{"clientID": "id", "clientSecret": "s", "tokenURL": "http://example.invalid"})
	require.Error(t, err)
}
