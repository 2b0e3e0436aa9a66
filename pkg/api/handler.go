package api

import (
	"encoding/json"
	"net/http"

	"github.com/mihaimyh/fit4seniors/pkg/entitlement"
)

// Handler provides the authenticated billing endpoints used by the web app
type Handler struct {
	config Config
}

// CreateCheckout answers POST /api/create-checkout with a Stripe Checkout URL.
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	user, err := h.authenticate(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if h.config.Billing == nil {
		h.handleError(w, r, ErrNotConfigured)
		return
	}

	url, err := h.config.Billing.CheckoutURL(r.Context(), user.ID, user.Email)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.config.Logger.Info("checkout session created", entitlement.Field{Key: "user_id", Value: user.ID})
	writeJSON(w, http.StatusOK, URLResponse{URL: url})
}

// GetEntitlement answers GET /api/get-entitlement with the caller's premium
// state, creating the default record on first access.
func (h *Handler) GetEntitlement(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	user, err := h.authenticate(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	ent, err := h.config.Manager.GetEntitlement(r.Context(), user.ID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, EntitlementResponse{
		IsPremium:        ent.IsPremium,
		CurrentPeriodEnd: ent.CurrentPeriodEnd,
	})
}

// CreatePortal answers POST /api/create-portal with a Billing Portal URL.
func (h *Handler) CreatePortal(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	user, err := h.authenticate(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if h.config.Billing == nil {
		h.handleError(w, r, ErrNotConfigured)
		return
	}

	url, err := h.config.Billing.PortalURL(r.Context(), user.ID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, URLResponse{URL: url})
}

// RequireUser authenticates the bearer token and stores the user in the
// request context for downstream handlers.
func (h *Handler) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := h.authenticate(r)
		if err != nil {
			h.handleError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// CORS allows the web app to call the API from any origin and answers
// preflight requests.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := w.Header()
		header.Set("Access-Control-Allow-Origin", "*")
		header.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		header.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) authenticate(r *http.Request) (*User, error) {
	if user := UserFromContext(r.Context()); user != nil {
		return user, nil
	}
	if h.config.Authenticator == nil {
		return nil, ErrNotConfigured
	}
	token := BearerToken(r)
	if token == "" {
		return nil, ErrUnauthorized
	}
	return h.config.Authenticator.Authenticate(r.Context(), token)
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method+", "+http.MethodOptions)
	writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method_not_allowed"})
	return false
}

// handleError handles errors with the status codes chosen by StatusFor
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if h.config.OnError != nil {
		h.config.OnError(w, r, err)
		return
	}

	status, code := StatusFor(err)
	resp := ErrorResponse{Error: code}
	if status >= http.StatusInternalServerError {
		h.config.Logger.Error("request failed",
			entitlement.Field{Key: "path", Value: r.URL.Path},
			entitlement.Field{Key: "code", Value: code},
			entitlement.Field{Key: "error", Value: err},
		)
	} else {
		resp.Message = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
