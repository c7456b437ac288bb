package builtin

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/pageloom/pageloom/internal/authz"
	"github.com/pageloom/pageloom/internal/pluginapi"
)

// BasicAuth implements HTTP Basic authentication against the user
// database file, verifying bcrypt or plaintext credentials per user
// record.
type BasicAuth struct {
	realm    string
	userFile string
	db       *authz.UserDB
}

// NewBasicAuth is this plugin's pluginapi.Factory. Recognized config
// keys: "userFile" (required), "realm" (default "pageloom").
func NewBasicAuth(raw map[string]string) (pluginapi.Plugin, error) {
	userFile := raw["userFile"]
	if userFile == "" {
		return nil, fmt.Errorf("basicauth: missing userFile configuration key")
	}
	realm := raw["realm"]
	if realm == "" {
		realm = "pageloom"
	}
	return &BasicAuth{realm: realm, userFile: userFile}, nil
}

func (b *BasicAuth) Name() string { return "basic-auth" }

func (b *BasicAuth) Init(ctx context.Context, pctx *pluginapi.Context) error {
	db, err := authz.LoadUserDB(b.userFile)
	if err != nil {
		return err
	}
	b.db = db
	return nil
}

func (b *BasicAuth) Shutdown(ctx context.Context) error { return nil }

func (b *BasicAuth) Policy() pluginapi.Policy {
	return pluginapi.Policy{RunOnEveryResponse: false}
}

func (b *BasicAuth) HandleRequest(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request) (pluginapi.Action, *pluginapi.Response, error) {
	username, password, ok := req.HTTP.BasicAuth()
	if !ok {
		return pluginapi.ActionContinue, nil, nil
	}

	user, found := b.db.FindUser(username)
	if !found || !user.Verify(password) {
		return pluginapi.ActionRespond, b.unauthorizedResponse(), nil
	}

	if req.Metadata == nil {
		req.Metadata = make(map[string]string)
	}
	req.Metadata[pluginapi.MetaUser] = user.Username
	req.Metadata[pluginapi.MetaRoles] = strings.Join(user.Roles, ",")
	return pluginapi.ActionContinue, nil, nil
}

func (b *BasicAuth) HandleResponse(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request, resp *pluginapi.Response) error {
	return nil
}

// unauthorizedResponse builds the 401 response with WWW-Authenticate, used
// when supplied Basic credentials fail verification.
func (b *BasicAuth) unauthorizedResponse() *pluginapi.Response {
	resp := textResponse(http.StatusUnauthorized, "Authentication required")
	resp.Header.Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", b.realm))
	return resp
}
