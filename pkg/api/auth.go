package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// User is an authenticated application user.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Authenticator resolves a bearer token to a user.
// Implementations return ErrUnauthorized for unknown or expired tokens.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*User, error)
}

// AuthenticatorFunc adapts a function to the Authenticator interface.
type AuthenticatorFunc func(ctx context.Context, token string) (*User, error)

func (f AuthenticatorFunc) Authenticate(ctx context.Context, token string) (*User, error) {
	return f(ctx, token)
}

// BearerToken returns the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

type userContextKey struct{}

// WithUser returns a context carrying the authenticated user.
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext returns the user stored by WithUser, or nil.
func UserFromContext(ctx context.Context) *User {
	user, _ := ctx.Value(userContextKey{}).(*User)
	return user
}

// UserIDFromRequest returns the authenticated user id of the request, or "".
func UserIDFromRequest(r *http.Request) string {
	if user := UserFromContext(r.Context()); user != nil {
		return user.ID
	}
	return ""
}

const defaultAuthTimeout = 5 * time.Second

// SupabaseAuthenticator validates access tokens against the Supabase Auth
// user endpoint.
type SupabaseAuthenticator struct {
	baseURL    string
	serviceKey string
	client     *http.Client
}

// NewSupabaseAuthenticator creates an authenticator for the project URL.
// serviceKey is sent as the apikey header.
func NewSupabaseAuthenticator(baseURL, serviceKey string, client *http.Client) *SupabaseAuthenticator {
	if client == nil {
		client = &http.Client{Timeout: defaultAuthTimeout}
	}
	return &SupabaseAuthenticator{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		client:     client,
	}
}

func (a *SupabaseAuthenticator) Authenticate(ctx context.Context, token string) (*User, error) {
	if a.baseURL == "" || a.serviceKey == "" {
		return nil, ErrNotConfigured
	}
	if token == "" {
		return nil, ErrUnauthorized
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/auth/v1/user", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", a.serviceKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: auth request: %v", ErrUpstream, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: auth server returned %d", ErrUpstream, resp.StatusCode)
	}

	var user User
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&user); err != nil {
		return nil, fmt.Errorf("%w: decode auth user: %v", ErrUpstream, err)
	}
	if user.ID == "" {
		return nil, ErrUnauthorized
	}
	return &user, nil
}
