// Package auth performs the installed-app OAuth2 flow against Google
// and caches the resulting token on disk. Both the Gmail and Sheets
// clients share the HTTP client it returns.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	sheetsapi "google.golang.org/api/sheets/v4"
)

const (
	callbackAddr = "localhost:8089"
	consentWait  = 5 * time.Minute
)

// Options configures the flow.
type Options struct {
	CredentialsFile string
	TokenFile       string
}

// Client returns an authenticated *http.Client. A cached token is used
// when present; otherwise the user is sent through browser consent and
// the new token is cached for next time.
func Client(ctx context.Context, opts Options, logger *log.Logger) (*http.Client, error) {
	credBytes, err := os.ReadFile(opts.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	config, err := google.ConfigFromJSON(credBytes,
		gmailapi.GmailModifyScope,
		sheetsapi.SpreadsheetsScope,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}

	token, err := loadToken(opts.TokenFile)
	if err != nil {
		token, err = tokenFromWeb(ctx, config)
		if err != nil {
			return nil, fmt.Errorf("failed to get token: %w", err)
		}
		if err := saveToken(opts.TokenFile, token); err != nil {
			logger.Warn("failed to save token", "error", err)
		}
	}

	return config.Client(ctx, token), nil
}

func loadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var token oauth2.Token
	if err := json.NewDecoder(f).Decode(&token); err != nil {
		return nil, err
	}

	if token.Expiry.Before(time.Now()) && token.RefreshToken == "" {
		return nil, fmt.Errorf("token expired")
	}
	return &token, nil
}

func saveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(token)
}

// tokenFromWeb runs browser consent: a short-lived localhost server
// catches the redirect and hands the authorization code back.
func tokenFromWeb(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			errCh <- fmt.Errorf("no code in callback")
			fmt.Fprintf(w, "Error: no authorization code received")
			return
		}
		codeCh <- code
		fmt.Fprintf(w, "Authorization successful! You can close this window.")
	})

	server := &http.Server{Addr: callbackAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	defer server.Shutdown(ctx)

	config.RedirectURL = "http://" + callbackAddr + "/callback"
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)

	fmt.Printf("\nOpen this URL in your browser to authorize mailsheet:\n\n%s\n\nWaiting for authorization...\n", authURL)

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return nil, err
	case <-time.After(consentWait):
		return nil, fmt.Errorf("authorization timeout")
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	token, err := config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	return token, nil
}
