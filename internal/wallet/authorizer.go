package wallet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/comigor/waveportal-go/internal/logger"
)

var ErrStateMismatch = errors.New("authorization state mismatch")

// Authorizer sends the user to authURL and returns the authorization code
// delivered to the redirect URI.
type Authorizer interface {
	Authorize(ctx context.Context, p Prompter, authURL, state string) (string, error)
}

// RedirectAuthorizer listens on the redirect URI when it is a loopback
// address; otherwise it asks the user to paste the URL they were sent to.
type RedirectAuthorizer struct {
	RedirectURI string
}

func (a RedirectAuthorizer) Authorize(ctx context.Context, p Prompter, authURL, state string) (string, error) {
	u, err := url.Parse(a.RedirectURI)
	if err != nil {
		return "", fmt.Errorf("redirect uri: %w", err)
	}
	if isLoopback(u.Hostname()) {
		return a.listen(ctx, p, u, authURL, state)
	}

	p.Notify(ctx, "Open this URL in a browser to sign in:\n"+authURL)
	pasted, err := p.Input(ctx, "Paste the URL you were redirected to")
	if err != nil {
		return "", err
	}
	back, err := url.Parse(strings.TrimSpace(pasted))
	if err != nil {
		return "", fmt.Errorf("redirected url: %w", err)
	}
	return codeFromQuery(back.Query(), state)
}

func (a RedirectAuthorizer) listen(ctx context.Context, p Prompter, u *url.URL, authURL, state string) (string, error) {
	ln, err := net.Listen("tcp", u.Host)
	if err != nil {
		return "", fmt.Errorf("listen on %s: %w", u.Host, err)
	}

	type result struct {
		code string
		err  error
	}
	results := make(chan result, 1)

	path := u.Path
	if path == "" {
		path = "/"
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		code, err := codeFromQuery(r.URL.Query(), state)
		select {
		case results <- result{code: code, err: err}:
		default:
		}
		if err != nil {
			http.Error(w, "sign-in failed, return to the terminal", http.StatusBadRequest)
			return
		}
		w.Write([]byte("Signed in. You can close this window."))
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L.Warn("redirect listener stopped", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	p.Notify(ctx, "Open this URL in a browser to sign in:\n"+authURL)
	select {
	case res := <-results:
		return res.code, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func codeFromQuery(q url.Values, state string) (string, error) {
	if e := q.Get("error"); e != "" {
		if e == "access_denied" {
			return "", ErrCancelled
		}
		return "", fmt.Errorf("authorization error %s: %s", e, q.Get("error_description"))
	}
	if q.Get("state") != state {
		return "", ErrStateMismatch
	}
	code := q.Get("code")
	if code == "" {
		return "", errors.New("redirect without authorization code")
	}
	return code, nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
