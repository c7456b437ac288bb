package builtin

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/pageloom/pageloom/internal/authz"
	"github.com/pageloom/pageloom/internal/pluginapi"
)

// Authorization evaluates every request against a rule file loaded from
// the user database, denying with 403 once authenticated (basic auth ran
// first and set MetaUser) or 401 with a fresh challenge when anonymous,
// so an anonymous visitor is asked to authenticate rather than simply
// told no.
type Authorization struct {
	ruleFile string
	realm    string
	eval     *authz.Evaluator
}

// NewAuthorization is this plugin's pluginapi.Factory. Recognized config
// keys: "ruleFile" (required, same user database file basic-auth reads),
// "realm" (default "pageloom").
func NewAuthorization(raw map[string]string) (pluginapi.Plugin, error) {
	ruleFile := raw["ruleFile"]
	if ruleFile == "" {
		return nil, fmt.Errorf("authorization: missing ruleFile configuration key")
	}
	realm := raw["realm"]
	if realm == "" {
		realm = "pageloom"
	}
	return &Authorization{ruleFile: ruleFile, realm: realm}, nil
}

func (a *Authorization) Name() string { return "authorization" }

func (a *Authorization) Init(ctx context.Context, pctx *pluginapi.Context) error {
	db, err := authz.LoadUserDB(a.ruleFile)
	if err != nil {
		return err
	}
	a.eval = authz.NewEvaluator(db.Rules)
	return nil
}

func (a *Authorization) Shutdown(ctx context.Context) error { return nil }

func (a *Authorization) Policy() pluginapi.Policy {
	return pluginapi.Policy{RunOnEveryResponse: false}
}

func (a *Authorization) HandleRequest(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request) (pluginapi.Action, *pluginapi.Response, error) {
	username := req.Metadata[pluginapi.MetaUser]
	roles := rolesSet(req.Metadata[pluginapi.MetaRoles])
	sel, _ := selectorFromRange(req.HTTP)

	decision := a.eval.Authorize(username, roles, req.CanonicalPath, req.HTTP.Method, sel)
	if decision == authz.Allow {
		return pluginapi.ActionContinue, nil, nil
	}

	if username == "" {
		resp := textResponse(http.StatusUnauthorized, "Authentication required")
		resp.Header.Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", a.realm))
		return pluginapi.ActionRespond, resp, nil
	}
	return pluginapi.ActionRespond, textResponse(http.StatusForbidden, "Access denied"), nil
}

func (a *Authorization) HandleResponse(ctx context.Context, pctx *pluginapi.Context, req *pluginapi.Request, resp *pluginapi.Response) error {
	return nil
}

func rolesSet(joined string) map[string]bool {
	if joined == "" {
		return nil
	}
	out := make(map[string]bool)
	for _, r := range strings.Split(joined, ",") {
		if r != "" {
			out[r] = true
		}
	}
	return out
}
