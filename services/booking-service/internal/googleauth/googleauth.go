package googleauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// Scopes covers both the calendar and the audit spreadsheet.
var Scopes = []string{
	"https://www.googleapis.com/auth/calendar",
	"https://www.googleapis.com/auth/spreadsheets",
}

type clientSecret struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	RedirectURIs []string `json:"redirect_uris"`
	AuthURI      string   `json:"auth_uri"`
	TokenURI     string   `json:"token_uri"`
}

// ParseCredentials reads a Google console client file. Both "installed" and "web" layouts are accepted.
func ParseCredentials(raw []byte) (*oauth2.Config, error) {
	var file struct {
		Installed *clientSecret `json:"installed"`
		Web       *clientSecret `json:"web"`
	}
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	secret := file.Installed
	if secret == nil {
		secret = file.Web
	}
	if secret == nil || secret.ClientID == "" {
		return nil, errors.New("credentials contain neither an installed nor a web client")
	}

	endpoint := endpoints.Google
	if secret.AuthURI != "" {
		endpoint.AuthURL = secret.AuthURI
	}
	if secret.TokenURI != "" {
		endpoint.TokenURL = secret.TokenURI
	}
	cfg := &oauth2.Config{
		ClientID:     secret.ClientID,
		ClientSecret: secret.ClientSecret,
		Endpoint:     endpoint,
		Scopes:       Scopes,
	}
	if len(secret.RedirectURIs) > 0 {
		cfg.RedirectURL = secret.RedirectURIs[0]
	}
	return cfg, nil
}

func LoadCredentials(path string) (*oauth2.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	return ParseCredentials(raw)
}

// storedToken accepts both the oauth2 layout and the one written by Google's node client,
// which keeps the expiry as epoch milliseconds in expiry_date.
type storedToken struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	ExpiryDate   int64     `json:"expiry_date,omitempty"`
}

func ParseToken(raw []byte) (*oauth2.Token, error) {
	var st storedToken
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	if st.AccessToken == "" && st.RefreshToken == "" {
		return nil, errors.New("token has neither access nor refresh token")
	}
	tok := &oauth2.Token{
		AccessToken:  st.AccessToken,
		TokenType:    st.TokenType,
		RefreshToken: st.RefreshToken,
		Expiry:       st.Expiry,
	}
	if tok.Expiry.IsZero() && st.ExpiryDate > 0 {
		tok.Expiry = time.UnixMilli(st.ExpiryDate)
	}
	return tok, nil
}

func LoadToken(path string) (*oauth2.Token, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	return ParseToken(raw)
}

func SaveToken(path string, tok *oauth2.Token) error {
	raw, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

// Secrets locates the OAuth client credentials and stored token. A base64 value, when set,
// wins over its file so containers can run without writing secrets to disk.
type Secrets struct {
	CredentialsFile string
	TokenFile       string
	CredentialsB64  string
	TokenB64        string
}

// Config returns the OAuth client config from the inline or file credentials.
func (s Secrets) Config() (*oauth2.Config, error) {
	if s.CredentialsB64 == "" {
		return LoadCredentials(s.CredentialsFile)
	}
	raw, err := decodeBase64(s.CredentialsB64)
	if err != nil {
		return nil, fmt.Errorf("GOOGLE_CREDENTIALS_B64: %w", err)
	}
	return ParseCredentials(raw)
}

// Token returns the stored token from the inline or file value.
func (s Secrets) Token() (*oauth2.Token, error) {
	if s.TokenB64 == "" {
		return LoadToken(s.TokenFile)
	}
	raw, err := decodeBase64(s.TokenB64)
	if err != nil {
		return nil, fmt.Errorf("GOOGLE_TOKEN_B64: %w", err)
	}
	return ParseToken(raw)
}

func decodeBase64(v string) ([]byte, error) {
	v = strings.TrimSpace(v)
	if raw, err := base64.StdEncoding.DecodeString(v); err == nil {
		return raw, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(v, "="))
}

// TokenSource builds a refreshing token source from secrets.
func TokenSource(ctx context.Context, secrets Secrets) (oauth2.TokenSource, error) {
	cfg, err := secrets.Config()
	if err != nil {
		return nil, err
	}
	tok, err := secrets.Token()
	if err != nil {
		return nil, err
	}
	return cfg.TokenSource(ctx, tok), nil
}

type transport struct {
	base   http.RoundTripper
	source oauth2.TokenSource
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.source.Token()
	if err != nil {
		return nil, err
	}
	req = req.Clone(req.Context())
	token.SetAuthHeader(req)
	return t.base.RoundTrip(req)
}

// NewHTTPClient returns a traced client that authenticates every request with source.
// A nil source yields an unauthenticated client, used against local test servers.
func NewHTTPClient(source oauth2.TokenSource, timeout time.Duration) *http.Client {
	var rt http.RoundTripper = http.DefaultTransport
	if source != nil {
		rt = &transport{base: rt, source: source}
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(rt),
	}
}
