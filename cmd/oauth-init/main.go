// oauth-init runs the OAuth consent flow once and saves a token that the
// sheets backend and ledger-worker read from GOOGLE_OAUTH_TOKEN_FILE or
// GOOGLE_OAUTH_TOKEN_JSON.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/sheets/v4"

	"cloudledger/internal/cli"
	"cloudledger/internal/config"
	"cloudledger/internal/log"
	gsheet "cloudledger/internal/sheets/google"
)

func main() {
	config.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), "oauth-init", os.Stderr)

	creds := gsheet.CredentialsFromEnv()
	clientJSON, err := readClient(creds)
	if err != nil {
		cli.Fatal(logger, "Missing OAuth client", err)
	}
	cfg, err := google.ConfigFromJSON(clientJSON, sheets.SpreadsheetsScope)
	if err != nil {
		cli.Fatal(logger, "Invalid OAuth client", fmt.Errorf("oauth config: %w", err))
	}

	// The redirect URI must be registered on the OAuth client.
	redirectPort := os.Getenv("OAUTH_REDIRECT_PORT")
	if redirectPort == "" {
		redirectPort = "8085"
	}
	cfg.RedirectURL = "http://localhost:" + redirectPort + "/callback"

	state, err := randomState()
	if err != nil {
		cli.Fatal(logger, "Failed to generate state", err)
	}

	codeCh := make(chan string, 1)
	mux := http.NewServeMux()
	srv := &http.Server{Addr: "localhost:" + redirectPort, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		if errStr := r.URL.Query().Get("error"); errStr != "" {
			http.Error(w, "OAuth error: "+errStr, http.StatusBadRequest)
			return
		}
		if r.URL.Query().Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, "You may close this window and return to the terminal.")
		select {
		case codeCh <- r.URL.Query().Get("code"):
		default:
		}
	})
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Callback server failed", log.NewFields().WithError(err)...)
		}
	}()
	defer srv.Close()

	fmt.Printf("Open this URL to authorize:\n%s\n", cfg.AuthCodeURL(state, oauth2.AccessTypeOffline))

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	select {
	case code := <-codeCh:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		tok, err := cfg.Exchange(ctx, code)
		if err != nil {
			cli.Fatal(logger, "Token exchange failed", err)
		}
		out, err := saveToken(tok, creds.OAuthTokenFile)
		if err != nil {
			cli.Fatal(logger, "Failed to save token", err)
		}
		logger.Info("Saved OAuth token", "path", out)
	case <-time.After(5 * time.Minute):
		cli.Fatal(logger, "Authorization timed out", context.DeadlineExceeded)
	case <-interrupt:
		cli.Fatal(logger, "Interrupted", context.Canceled)
	}
}

func readClient(c gsheet.Credentials) ([]byte, error) {
	if c.OAuthClientJSON != "" {
		return []byte(c.OAuthClientJSON), nil
	}
	if c.OAuthClientFile != "" {
		return os.ReadFile(c.OAuthClientFile)
	}
	return nil, errors.New("set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE")
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// saveToken writes the token to out, or token.json when out is empty.
func saveToken(tok *oauth2.Token, out string) (string, error) {
	if out == "" {
		out = "token.json"
	}
	f, err := os.OpenFile(out, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return out, json.NewEncoder(f).Encode(tok)
}
