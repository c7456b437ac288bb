// Package authz implements the Authorization Evaluator: matching (user,
// roles, path, method, selector) against a set of rules with specificity
// ordering and :username/{username} template substitution.
package authz

import (
	"strings"
)

// Action is a rule's decision.
type Action int

const (
	Deny Action = iota
	Allow
)

func (a Action) String() string {
	if a == Allow {
		return "allow"
	}
	return "deny"
}

// Rule is one AuthorizationRule item from the user database. Every field
// except Selector is required.
type Rule struct {
	// Principal is an exact username, a role name, "*", or the template
	// ":username" (matches any authenticated user; pairs with a path
	// template referring to the same user).
	Principal string

	// PathPattern may contain literal segments, "*" (one segment), "**"
	// (any-depth tail, only meaningful as the final segment), and
	// "{username}"/":username" tokens substituted before matching.
	PathPattern string

	// Selector is an optional CSS-selector pattern; empty means the rule
	// applies to the whole path regardless of any selector in the request.
	Selector string

	// Methods lists explicit HTTP methods, or ["*"] for any method.
	Methods []string

	Action Action
}

// Evaluator holds a fixed rule set and answers Authorize queries against
// it. Deterministic: for fixed rules, principal, path, method, and
// selector the decision never depends on rule file order beyond the
// specificity tiebreak below.
type Evaluator struct {
	rules []Rule
}

// NewEvaluator builds an Evaluator over rules. The slice is not mutated or
// retained past this call's read of it.
func NewEvaluator(rules []Rule) *Evaluator {
	cp := make([]Rule, len(rules))
	copy(cp, rules)
	return &Evaluator{rules: cp}
}

// candidate is a rule that matched, with its specificity score.
type candidate struct {
	rule    Rule
	score   [4]int // principal, path, method, selector
}

// Authorize returns the decision for one request. roles is the
// authenticated user's role set (nil/empty for anonymous). username may be
// empty for an anonymous request. selector is the CSS selector expression
// from the Range header, or empty if the request does not address a
// selector. If no rule matches, the decision is Deny.
func (e *Evaluator) Authorize(username string, roles map[string]bool, path, method, sel string) Action {
	var candidates []candidate

	for _, r := range e.rules {
		expandedPath, ok := expandTemplate(r.PathPattern, username)
		if !ok {
			continue // template with no authenticated user: skipped
		}

		principalScore, ok := matchPrincipal(r.Principal, username, roles)
		if !ok {
			continue
		}
		hadTemplate := expandedPath != r.PathPattern
		pathScore, ok := matchPath(expandedPath, path, hadTemplate)
		if !ok {
			continue
		}
		methodScore, ok := matchMethod(r.Methods, method)
		if !ok {
			continue
		}
		selectorScore, ok := matchSelector(r.Selector, sel)
		if !ok {
			continue
		}

		candidates = append(candidates, candidate{
			rule:  r,
			score: [4]int{principalScore, pathScore, methodScore, selectorScore},
		})
	}

	if len(candidates) == 0 {
		return Deny
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if higher(c.score, best.score) {
			best = c
		}
	}
	return best.rule.Action
}

// higher reports whether a outranks b, comparing principal, then path,
// then method, then selector specificity in that priority order.
func higher(a, b [4]int) bool {
	for i := 0; i < 4; i++ {
		if a[i] != b[i] {
			return a[i] > b[i]
		}
	}
	return false
}

func matchPrincipal(principal, username string, roles map[string]bool) (score int, ok bool) {
	switch {
	case principal == username && username != "":
		return 3, true
	case roles[principal]:
		return 2, true
	case principal == ":username":
		return 1, username != ""
	case principal == "*":
		return 0, true
	default:
		return 0, false
	}
}

// expandTemplate substitutes {username} and :username tokens in pattern
// with username. If the pattern contains a token but username is empty,
// ok is false: a rule whose template has no authenticated user to bind is
// skipped entirely rather than matching literally.
func expandTemplate(pattern, username string) (string, bool) {
	hasToken := strings.Contains(pattern, "{username}") || strings.Contains(pattern, ":username")
	if !hasToken {
		return pattern, true
	}
	if username == "" {
		return "", false
	}
	out := strings.ReplaceAll(pattern, "{username}", username)
	out = strings.ReplaceAll(out, ":username", username)
	return out, true
}

// matchPath matches pattern segments against path segments, supporting
// "*" (one segment) and a trailing "**" (any depth, including zero).
// score encodes specificity tier (see tier constants) with segment count
// as a secondary tiebreak within a tier: exact segments outrank a literal
// prefix, which outranks a single "*" wildcard, which outranks a "**"
// tail, which outranks a template; templated patterns are scored in the
// lowest tier regardless of their substituted shape, since a template is
// always less specific than a literal rule aimed at the same path.
const (
	tierTemplate = 0
	tierDoubleStar = 1
	tierSingleStar = 2
	tierLiteral   = 3
	tierExact     = 4
)

func matchPath(pattern, path string, hadTemplate bool) (score int, ok bool) {
	patSegs := splitPath(pattern)
	pathSegs := splitPath(path)

	matched := matchSegments(patSegs, pathSegs)
	if !matched {
		return 0, false
	}

	tier := tierExact
	literalCount := 0
	for _, s := range patSegs {
		switch s {
		case "**":
			tier = min(tier, tierDoubleStar)
		case "*":
			tier = min(tier, tierSingleStar)
		default:
			literalCount++
		}
	}
	if hadTemplate {
		// A template is always less specific than a literal rule aimed
		// at the same expanded path.
		tier = tierTemplate
	}
	return tier*1000 + literalCount, true
}

func matchSegments(pat, path []string) bool {
	i, j := 0, 0
	for i < len(pat) {
		seg := pat[i]
		if seg == "**" {
			return true // matches any remaining depth, including zero
		}
		if j >= len(path) {
			return false
		}
		if seg != "*" && seg != path[j] {
			return false
		}
		i++
		j++
	}
	return j == len(path)
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func matchMethod(methods []string, method string) (score int, ok bool) {
	for _, m := range methods {
		if m == "*" {
			ok = true
			continue
		}
		if strings.EqualFold(m, method) {
			return 1, true
		}
	}
	return 0, ok
}

func matchSelector(rulePattern, reqSelector string) (score int, ok bool) {
	if rulePattern == "" {
		return 0, true // applies to the whole path regardless of selector
	}
	if reqSelector != "" && rulePattern == reqSelector {
		return 1, true
	}
	return 0, false
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
