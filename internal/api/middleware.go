package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/digkill/chimeralens/internal/models"
	"github.com/digkill/chimeralens/internal/service"
)

type ctxKey struct{}

func withAccount(ctx context.Context, account *models.Account) context.Context {
	return context.WithValue(ctx, ctxKey{}, account)
}

// accountFrom returns the account resolved by identify. Handlers behind that
// middleware can rely on it being set.
func accountFrom(ctx context.Context) *models.Account {
	account, _ := ctx.Value(ctxKey{}).(*models.Account)
	return account
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// identify attaches the calling account. A valid bearer token wins; anything
// else is resolved from guest hints, provisioning a guest when nothing matches.
func (s *Server) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if token := bearerToken(r); token != "" {
			if claims, err := s.deps.Signer.Parse(token); err == nil {
				account, err := s.deps.Identity.ByID(ctx, claims.AccountID)
				switch {
				case err == nil:
					next.ServeHTTP(w, r.WithContext(withAccount(ctx, account)))
					return
				case !errors.Is(err, service.ErrAccountNotFound):
					s.writeError(w, err)
					return
				}
			}
		}

		res, err := s.deps.Identity.Resolve(ctx, service.Hints{
			GuestToken:  strings.TrimSpace(r.Header.Get(headerGuestID)),
			Fingerprint: strings.TrimSpace(r.Header.Get(headerFingerprint)),
			SourceIP:    clientIP(r),
		})
		if err != nil {
			s.writeError(w, err)
			return
		}
		if res.Account.IsGuest && res.Account.GuestToken != "" {
			w.Header().Set(headerGuestID, res.Account.GuestToken)
		}
		next.ServeHTTP(w, r.WithContext(withAccount(ctx, res.Account)))
	})
}

func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || !equal(user, s.opts.AdminUsername) || !equal(pass, s.opts.AdminPassword) {
			w.Header().Set("WWW-Authenticate", `Basic realm="chimeralens"`)
			s.writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Message: "admin credentials required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// clientIP reads RemoteAddr, which middleware.RealIP has already replaced
// with the forwarded address when one was sent.
func clientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
