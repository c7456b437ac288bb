package authz

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/pageloom/pageloom/internal/htmldoc"
	"github.com/pageloom/pageloom/internal/microdata"
)

// User is one User item from the user database: username, stored
// credential, its encryption scheme, and roles.
type User struct {
	Username   string
	Credential string
	Encryption string // "plaintext" or "bcrypt"
	Roles      []string
}

// RoleSet builds the map[string]bool form Authorize expects.
func (u User) RoleSet() map[string]bool {
	set := make(map[string]bool, len(u.Roles))
	for _, r := range u.Roles {
		set[r] = true
	}
	return set
}

// Verify checks password against the user's stored credential, dispatching
// on Encryption. Mirrors the bcrypt.CompareHashAndPassword verification
// path a basic-auth provider uses for hashed credentials, falling back to
// a direct comparison for plaintext-configured users.
func (u User) Verify(password string) bool {
	switch u.Encryption {
	case "bcrypt":
		return bcrypt.CompareHashAndPassword([]byte(u.Credential), []byte(password)) == nil
	default:
		return u.Credential == password
	}
}

// UserDB is the parsed contents of a user database HTML document: its
// User table and its AuthorizationRule table.
type UserDB struct {
	Users []User
	Rules []Rule
}

// FindUser looks up a user by exact username.
func (db *UserDB) FindUser(username string) (User, bool) {
	for _, u := range db.Users {
		if u.Username == username {
			return u, true
		}
	}
	return User{}, false
}

// LoadUserDB reads and parses a user database file from path.
func LoadUserDB(path string) (*UserDB, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("authz: read user db %s: %w", path, err)
	}
	db, err := LoadUserDBBytes(data)
	if err != nil {
		return nil, fmt.Errorf("authz: user db %s: %w", path, err)
	}
	return db, nil
}

// LoadUserDBBytes parses an in-memory user database document.
func LoadUserDBBytes(data []byte) (*UserDB, error) {
	doc, err := htmldoc.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	items := microdata.Extract(doc.Root)
	db := &UserDB{}

	for _, it := range items {
		switch schemaName(it.Type) {
		case "User":
			u, err := parseUser(it)
			if err != nil {
				return nil, err
			}
			db.Users = append(db.Users, u)
		case "AuthorizationRule":
			r, err := parseRule(it)
			if err != nil {
				return nil, err
			}
			db.Rules = append(db.Rules, r)
		}
	}

	return db, nil
}

func parseUser(it *microdata.Item) (User, error) {
	username, ok := it.GetText("username")
	if !ok || username == "" {
		return User{}, fmt.Errorf("%w: User item missing username", errUserDB)
	}
	credential, _ := it.GetText("password")
	encryption, _ := it.GetText("encryption")
	if encryption == "" {
		encryption = "plaintext"
	}

	var roles []string
	for _, v := range it.All("role") {
		if !v.IsItem() {
			roles = append(roles, v.Text)
		}
	}

	return User{
		Username:   username,
		Credential: credential,
		Encryption: encryption,
		Roles:      roles,
	}, nil
}

func parseRule(it *microdata.Item) (Rule, error) {
	principal, ok := it.GetText("username")
	if !ok {
		principal, ok = it.GetText("principal")
	}
	if !ok || principal == "" {
		return Rule{}, fmt.Errorf("%w: AuthorizationRule missing principal", errUserDB)
	}
	path, ok := it.GetText("path")
	if !ok || path == "" {
		return Rule{}, fmt.Errorf("%w: AuthorizationRule missing path", errUserDB)
	}
	actionText, ok := it.GetText("action")
	if !ok || actionText == "" {
		return Rule{}, fmt.Errorf("%w: AuthorizationRule missing action", errUserDB)
	}

	action := Deny
	if strings.EqualFold(actionText, "allow") {
		action = Allow
	}

	methodText, _ := it.GetText("method")
	methods := []string{"*"}
	if methodText != "" {
		methods = strings.Fields(methodText)
	}

	selector, _ := it.GetText("selector")

	return Rule{
		Principal:   principal,
		PathPattern: path,
		Selector:    selector,
		Methods:     methods,
		Action:      action,
	}, nil
}

func schemaName(uri string) string {
	if i := strings.LastIndexAny(uri, "/#"); i >= 0 {
		return uri[i+1:]
	}
	return uri
}

var errUserDB = fmt.Errorf("invalid user database entry")
