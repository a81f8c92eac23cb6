package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Credentials holds the supported auth sources. Service account wins over
// OAuth when both are set.
type Credentials struct {
	ServiceAccountJSON string
	ServiceAccountFile string
	OAuthClientJSON    string
	OAuthClientFile    string
	OAuthTokenJSON     string
	OAuthTokenFile     string
}

var (
	ErrMissingCredentials = errors.New("missing google credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or an OAuth client and token)")
	ErrMissingOAuthToken  = errors.New("missing oauth token (set GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE)")
)

// CredentialsFromEnv fills Credentials from the process environment,
// falling back to GOOGLE_APPLICATION_CREDENTIALS for the service account file.
func CredentialsFromEnv() Credentials {
	c := Credentials{
		ServiceAccountJSON: strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")),
		ServiceAccountFile: strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE")),
		OAuthClientJSON:    strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_JSON")),
		OAuthClientFile:    strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_FILE")),
		OAuthTokenJSON:     strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_TOKEN_JSON")),
		OAuthTokenFile:     strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_TOKEN_FILE")),
	}
	if c.ServiceAccountJSON == "" && c.ServiceAccountFile == "" {
		c.ServiceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	return c
}

// ClientOptions turns the credentials into API client options.
func (c Credentials) ClientOptions(ctx context.Context) ([]goption.ClientOption, error) {
	sa, err := readInlineOrFile(c.ServiceAccountJSON, c.ServiceAccountFile)
	if err != nil {
		return nil, fmt.Errorf("read service account: %w", err)
	}
	if len(sa) > 0 {
		slog.InfoContext(ctx, "Using service account credentials", "size", len(sa))
		return []goption.ClientOption{
			goption.WithCredentialsJSON(sa),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}, nil
	}

	client, err := readInlineOrFile(c.OAuthClientJSON, c.OAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client: %w", err)
	}
	if len(client) == 0 {
		return nil, ErrMissingCredentials
	}
	cfg, err := goauth.ConfigFromJSON(client, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	raw, err := readInlineOrFile(c.OAuthTokenJSON, c.OAuthTokenFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth token: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrMissingOAuthToken
	}
	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("parse oauth token: %w", err)
	}
	slog.InfoContext(ctx, "Using OAuth user credentials")
	return []goption.ClientOption{goption.WithTokenSource(cfg.TokenSource(ctx, &tok))}, nil
}

func readInlineOrFile(inline, path string) ([]byte, error) {
	switch {
	case inline != "":
		return []byte(inline), nil
	case path != "":
		return os.ReadFile(path)
	}
	return nil, nil
}
