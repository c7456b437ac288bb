package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/pageloom/pageloom/internal/pluginapi"
)

// OAuth2Bearer validates an incoming "Authorization: Bearer <token>"
// header against the configured identity provider's token introspection
// endpoint, writing the introspected subject and scopes into request
// metadata on success. On failure it answers with the standard
// WWW-Authenticate: Bearer realm=... challenge, using x/oauth2's
// clientcredentials.Config to authenticate pageloom's own introspection
// calls to the provider.
type OAuth2Bearer struct {
	introspectURL string
	realm         string
	oauthConfig   *clientcredentials.Config
}

// NewOAuth2Bearer is this plugin's pluginapi.Factory. Recognized config
// keys: "introspectURL" (required), "tokenURL", "clientID", "clientSecret"
// (required, credentials pageloom uses to call introspection), "realm"
// (default "pageloom").
func NewOAuth2Bearer(raw map[string]string) (pluginapi.Plugin, error) {
	introspectURL := raw["introspectURL"]
	if introspectURL == "" {
		return nil, fmt.Errorf("oauth2: missing introspectURL configuration key")
	}
	clientID := raw["clientID"]
	clientSecret := raw["clientSecret"]
	tokenURL := raw["tokenURL"]
	if clientID == "" || clientSecret == "" || tokenURL == "" {
		return nil, fmt.Errorf("oauth2: clientID, clientSecret, and tokenURL are required")
	}
	realm := raw["realm"]
	if realm == "" {
		realm = "pageloom"
	}

	return &OAuth2Bearer{
		introspectURL: introspectURL,
		realm:         realm,
		oauthConfig: &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
		},
	}, nil
}

func (o *OAuth2Bearer) Name() string { return "oauth2-bearer" }

func (o *OAuth2Bearer) Init(ctx context.Context, pctx *pluginapi.Context) error { return nil }

func (o *OAuth2Bearer) Shutdown(ctx context.Context) error { return nil }

func (o *OAuth2Bearer) Policy() pluginapi.Policy {
	return pluginapi.Policy{RunOnEveryResponse: false}
}

type introspectionResult struct {
	Active bool   `json:"active"`
	Sub    string `json:"sub"`
	Scope  string `json:"scope"`
}

func (o *OAuth2Bearer) HandleRequest(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request) (pluginapi.Action, *pluginapi.Response, error) {
	auth := req.HTTP.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return pluginapi.ActionContinue, nil, nil
	}
	token := strings.TrimPrefix(auth, "Bearer ")

	httpClient := o.oauthConfig.Client(ctx)
	result, err := o.introspect(httpClient, token)
	if err != nil || !result.Active {
		return pluginapi.ActionRespond, o.challenge(), nil
	}

	if req.Metadata == nil {
		req.Metadata = make(map[string]string)
	}
	req.Metadata[pluginapi.MetaUser] = result.Sub
	req.Metadata[pluginapi.MetaRoles] = strings.ReplaceAll(result.Scope, " ", ",")
	return pluginapi.ActionContinue, nil, nil
}

func (o *OAuth2Bearer) introspect(client *http.Client, token string) (*introspectionResult, error) {
	resp, err := client.PostForm(o.introspectURL, map[string][]string{"token": {token}})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oauth2: introspection returned %d", resp.StatusCode)
	}
	var result introspectionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (o *OAuth2Bearer) challenge() *pluginapi.Response {
	resp := textResponse(http.StatusUnauthorized, "Authentication required")
	resp.Header.Set("WWW-Authenticate", fmt.Sprintf("Bearer realm=%q", o.realm))
	return resp
}

func (o *OAuth2Bearer) HandleResponse(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request, resp *pluginapi.Response) error {
	return nil
}
