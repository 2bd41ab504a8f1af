package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultGraphBaseURL = "https://graph.facebook.com"
	defaultAPIVersion   = "v21.0"
	defaultHTTPTimeout  = 10 * time.Second

	// DefaultMaxMediaBytes caps downloads; the Cloud API rejects larger uploads anyway.
	DefaultMaxMediaBytes = 100 << 20
)

var (
	// ErrNotConfigured is returned when a call needs a credential that is unset.
	ErrNotConfigured = errors.New("whatsapp: client not configured")
	// ErrMediaTooLarge is returned when a download exceeds the size cap.
	ErrMediaTooLarge = errors.New("whatsapp: media exceeds size limit")
)

// APIError is a non-success answer from the Graph API.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp: API error (status %d): %s", e.Status, e.Message)
}

// Config controls how the Graph API client behaves.
type Config struct {
	AccessToken   string
	APIVersion    string
	PhoneNumberID string
	BaseURL       string
	Timeout       time.Duration
	HTTPClient    *http.Client
	// MediaHTTPClient serves Download. It should carry no Timeout of its own;
	// callers bound each download with a context deadline.
	MediaHTTPClient *http.Client
	// MaxMediaBytes defaults to DefaultMaxMediaBytes.
	MaxMediaBytes int64
	Logger        *slog.Logger
}

// Client talks to the WhatsApp Cloud API.
type Client struct {
	accessToken   string
	apiVersion    string
	phoneNumberID string
	baseURL       string
	httpClient    *http.Client
	mediaClient   *http.Client
	maxMedia      int64
	logger        *slog.Logger
}

// NewClient builds a client. Missing credentials are reported on first use.
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultGraphBaseURL
	}
	version := strings.Trim(strings.TrimSpace(cfg.APIVersion), "/")
	if version == "" {
		version = defaultAPIVersion
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	mediaClient := cfg.MediaHTTPClient
	if mediaClient == nil {
		// Same transport, but large downloads are bounded by the caller's
		// deadline rather than the API call timeout.
		copied := *httpClient
		copied.Timeout = 0
		mediaClient = &copied
	}
	maxMedia := cfg.MaxMediaBytes
	if maxMedia <= 0 {
		maxMedia = DefaultMaxMediaBytes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		accessToken:   strings.TrimSpace(cfg.AccessToken),
		apiVersion:    version,
		phoneNumberID: strings.TrimSpace(cfg.PhoneNumberID),
		baseURL:       baseURL,
		httpClient:    httpClient,
		mediaClient:   mediaClient,
		maxMedia:      maxMedia,
		logger:        logger,
	}
}

// SetBaseURL overrides the Graph API host (useful for testing).
func (c *Client) SetBaseURL(base string) {
	c.baseURL = strings.TrimRight(base, "/")
}

// SendText sends a plain text message to a digits-only WhatsApp id.
func (c *Client) SendText(ctx context.Context, to, text string) (*SendResponse, error) {
	if c.accessToken == "" || c.phoneNumberID == "" {
		return nil, fmt.Errorf("%w: access token and phone number id are required", ErrNotConfigured)
	}
	payload, err := json.Marshal(SendTextRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             SendTextPayload{Body: text},
	})
	if err != nil {
		return nil, fmt.Errorf("whatsapp: marshal send request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/%s/messages", c.baseURL, c.apiVersion, url.PathEscape(c.phoneNumberID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("whatsapp: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	var out SendResponse
	status, err := c.doJSON(req, &out)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: send message: %w", err)
	}
	if out.Error != nil || status < 200 || status >= 300 {
		return nil, apiError(status, out.Error)
	}
	return &out, nil
}

// MediaMetadata resolves a media id into a short-lived download URL.
func (c *Client) MediaMetadata(ctx context.Context, mediaID string) (*MediaMetadata, error) {
	if c.accessToken == "" {
		return nil, fmt.Errorf("%w: access token is required", ErrNotConfigured)
	}
	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, c.apiVersion, url.PathEscape(mediaID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	var out MediaMetadata
	status, err := c.doJSON(req, &out)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: media metadata: %w", err)
	}
	if out.Error != nil || status < 200 || status >= 300 {
		return nil, apiError(status, out.Error)
	}
	if strings.TrimSpace(out.URL) == "" {
		return nil, &APIError{Status: http.StatusBadGateway, Message: "media lookup returned no url"}
	}
	return &out, nil
}

// CredentialPlacement says where Download puts the access token.
type CredentialPlacement int

const (
	// CredentialInQuery replaces the access_token query parameter.
	CredentialInQuery CredentialPlacement = iota
	// CredentialInHeader strips access_token and sends a bearer header.
	CredentialInHeader
)

// DownloadResult is the outcome of one byte-fetch attempt.
type DownloadResult struct {
	Status      int
	ContentType string
	Body        []byte
}

// OK reports a 2xx status.
func (r *DownloadResult) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// Download performs a single GET of a resolved media URL. Non-2xx answers are
// returned as results; transport failures and bodies over the size cap
// produce an error. ctx should carry the download deadline.
func (c *Client) Download(ctx context.Context, rawURL string, placement CredentialPlacement) (*DownloadResult, error) {
	target, err := c.mediaURL(rawURL, placement)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: create request: %w", err)
	}
	if placement == CredentialInHeader && c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.mediaClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: download media: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxMedia+1))
	if err != nil {
		return nil, fmt.Errorf("whatsapp: read media: %w", err)
	}
	if int64(len(body)) > c.maxMedia {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrMediaTooLarge, c.maxMedia)
	}
	return &DownloadResult{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func (c *Client) mediaURL(rawURL string, placement CredentialPlacement) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("whatsapp: parse media url: %w", err)
	}
	q := u.Query()
	q.Del("access_token")
	if placement == CredentialInQuery && c.accessToken != "" {
		q.Set("access_token", c.accessToken)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) doJSON(req *http.Request, out any) (int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp.StatusCode, fmt.Errorf("unmarshal response: %w", err)
		}
		c.logger.Warn("whatsapp: non-json error body", "status", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func apiError(status int, gerr *GraphError) *APIError {
	if status < 400 {
		status = http.StatusBadGateway
	}
	e := &APIError{Status: status, Message: http.StatusText(status)}
	if gerr != nil {
		e.Code = gerr.Code
		if gerr.Message != "" {
			e.Message = gerr.Message
		}
	}
	return e
}
