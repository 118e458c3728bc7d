package wingman

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/casualjim/wingman/auth"
	"github.com/casualjim/wingman/pkg/slogx"
	"github.com/casualjim/wingman/pkg/uuidx"
	"github.com/casualjim/wingman/stream"
	"github.com/fogfish/opts"
	json "github.com/goccy/go-json"
)

const (
	defaultAPIBaseURL   = "https://api.githubcopilot.com"
	defaultExchangeURL  = "https://api.github.com/copilot_internal/v2/token"
	defaultPrincipalURL = "https://api.github.com/user"
	defaultClientID     = "Iv1.b507a08c87ecfe98"

	defaultEditorVersion = "vscode/1.99.3"
	defaultPluginVersion = "copilot-chat/0.26.7"
	defaultUserAgent     = "GitHubCopilotChat/0.26.7"

	intentConversation = "conversation-panel"

	loginScope = "read:user"
)

// Client talks to the chat-completion API. It owns a token source that
// transparently refreshes the short-lived access token and persists it
// through the credential store.
type Client struct {
	client *http.Client

	baseURL       string
	exchangeURL   string
	principalURL  string
	deviceCodeURL string
	grantURL      string

	clientID      string
	editorVersion string
	pluginVersion string
	userAgent     string

	skew  time.Duration
	store *auth.Store

	tokens *auth.TokenSource
}

var (
	// WithClient overrides the HTTP client used for every call.
	WithClient = opts.ForName[Client, *http.Client]("client")
	// WithBaseURL points the client at a different API host.
	WithBaseURL = opts.ForName[Client, string]("baseURL")
	// WithExchangeURL overrides the access-token exchange endpoint.
	WithExchangeURL = opts.ForName[Client, string]("exchangeURL")
	// WithPrincipalURL overrides the endpoint used to resolve the
	// human-readable identity after login.
	WithPrincipalURL = opts.ForName[Client, string]("principalURL")
	// WithDeviceCodeURL overrides the device-code issuance endpoint.
	WithDeviceCodeURL = opts.ForName[Client, string]("deviceCodeURL")
	// WithGrantURL overrides the device-grant polling endpoint.
	WithGrantURL = opts.ForName[Client, string]("grantURL")
	// WithClientID overrides the OAuth client identifier.
	WithClientID = opts.ForName[Client, string]("clientID")
	// WithSkew overrides the access-token expiry safety margin.
	WithSkew = opts.ForName[Client, time.Duration]("skew")
	// WithStore overrides the credential store.
	WithStore = opts.ForName[Client, *auth.Store]("store")
)

// New creates a client. Credentials load lazily from the store on the
// first authenticated call; construction itself never touches the network
// or the disk.
func New(options ...opts.Option[Client]) (*Client, error) {
	c := &Client{
		client:        http.DefaultClient,
		baseURL:       defaultAPIBaseURL,
		exchangeURL:   defaultExchangeURL,
		principalURL:  defaultPrincipalURL,
		clientID:      defaultClientID,
		editorVersion: defaultEditorVersion,
		pluginVersion: defaultPluginVersion,
		userAgent:     defaultUserAgent,
	}
	if err := opts.Apply(c, options); err != nil {
		return nil, fmt.Errorf("failed to apply client options: %w", err)
	}

	if c.store == nil {
		path, err := auth.DefaultStorePath()
		if err != nil {
			return nil, err
		}
		c.store = auth.NewStore(path)
	}

	var tsOptions []opts.Option[auth.TokenSource]
	if c.skew > 0 {
		tsOptions = append(tsOptions, auth.WithSkew(c.skew))
	}
	tokens, err := auth.NewTokenSource(c.store, auth.ExchangeFunc(c.exchangeToken), tsOptions...)
	if err != nil {
		return nil, err
	}
	c.tokens = tokens

	return c, nil
}

// Tokens exposes the client's token source, mainly so callers can inspect
// the current record.
func (c *Client) Tokens() *auth.TokenSource {
	return c.tokens
}

// Login runs the device-authorization flow, persists the resulting record
// and installs it in the token source. The prompt receives the user code
// and verification URI to display.
func (c *Client) Login(ctx context.Context, prompt auth.PromptFunc) (*auth.Record, error) {
	authOptions := []opts.Option[auth.Authorizer]{auth.WithHTTPClient(c.client)}
	if c.deviceCodeURL != "" {
		authOptions = append(authOptions, auth.WithDeviceCodeURL(c.deviceCodeURL))
	}
	if c.grantURL != "" {
		authOptions = append(authOptions, auth.WithGrantURL(c.grantURL))
	}
	authorizer, err := auth.NewAuthorizer(c.clientID, authOptions...)
	if err != nil {
		return nil, err
	}

	rec, err := auth.Login(ctx, authorizer, auth.ExchangeFunc(c.exchangeToken), c.store, prompt, loginScope)
	if err != nil {
		return nil, err
	}

	// Principal is cosmetic; a failed lookup never fails the login.
	if principal, err := c.lookupPrincipal(ctx, rec.IdentityToken); err == nil && principal != "" {
		rec.Principal = principal
		if err := c.store.Save(rec); err != nil {
			slog.Warn("failed to persist principal", slogx.Error(err))
		}
	}

	c.tokens.SetRecord(rec)
	return rec, nil
}

// exchangeToken trades the identity token for a short-lived access token.
// The call is a GET carrying the identity token in a token authorization
// scheme; it implements auth.Exchanger for the token source.
func (c *Client) exchangeToken(ctx context.Context, identityToken string) (*auth.AccessToken, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.exchangeURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build exchange request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "token "+identityToken)
	c.identify(req.Header)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &auth.Error{Message: "identity token was rejected, run `wingman login` again or check that your subscription is active"}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tok auth.AccessToken
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, fmt.Errorf("failed to parse exchange response: %w", err)
	}
	if tok.Token == "" || tok.ExpiresAt == 0 {
		return nil, fmt.Errorf("exchange response is missing token or expiry")
	}
	return &tok, nil
}

// lookupPrincipal resolves the human-readable identity behind the identity
// token.
func (c *Client) lookupPrincipal(ctx context.Context, identityToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.principalURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "token "+identityToken)
	c.identify(req.Header)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("principal lookup returned status %d", resp.StatusCode)
	}

	var principal struct {
		Login string `json:"login"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&principal); err != nil {
		return "", err
	}
	return principal.Login, nil
}

// identify stamps the editor, plugin and user-agent identification headers
// required on every call.
func (c *Client) identify(h http.Header) {
	h.Set("Editor-Version", c.editorVersion)
	h.Set("Editor-Plugin-Version", c.pluginVersion)
	h.Set("User-Agent", c.userAgent)
}

// authenticated builds a request against the API host with a valid bearer
// token, refreshing it first when needed.
func (c *Client) authenticated(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	rec, err := c.tokens.EnsureValid(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+rec.AccessToken)
	c.identify(req.Header)
	return req, nil
}

// chatRequest builds the POST for a chat completion, adding the headers
// only chat calls carry.
func (c *Client) chatRequest(ctx context.Context, payload ChatRequest) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat request: %w", err)
	}

	req, err := c.authenticated(ctx, http.MethodPost, "/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Request-Id", uuidx.NewString())
	req.Header.Set("Openai-Intent", intentConversation)
	if payload.hasImage() {
		req.Header.Set("Copilot-Vision-Request", "true")
	}
	return req, nil
}

// ChatCompletion issues a non-streaming chat completion and returns the
// single JSON document.
func (c *Client) ChatCompletion(ctx context.Context, payload ChatRequest) (*ChatResponse, error) {
	payload.Stream = false
	req, err := c.chatRequest(ctx, payload)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	var out ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to parse chat response: %w", err)
	}
	return &out, nil
}

// StreamChatCompletion issues a streaming chat completion and returns a
// decoder over the open response body. The caller owns the decoder and
// must close it.
func (c *Client) StreamChatCompletion(ctx context.Context, payload ChatRequest, decoderOptions ...opts.Option[stream.Decoder]) (*stream.Decoder, error) {
	payload.Stream = true
	req, err := c.chatRequest(ctx, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if err := checkResponse(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}

	return stream.NewDecoder(resp.Body, decoderOptions...), nil
}
