// Package client provides the Go SDK for the CredAnchor registry:
// issuing credentials, running verifications, and working with share
// links over the registry's REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrShareLinkGone is returned by AccessShareLink when the link has
// expired or its view budget is exhausted.
var ErrShareLinkGone = errors.New("share link expired or exhausted")

// ErrSharePassword is returned by AccessShareLink when the link requires
// a password and the supplied one is missing or wrong.
var ErrSharePassword = errors.New("share link password required or incorrect")

// IssueRequest is the payload for Issue.
type IssueRequest struct {
	StudentEmail string            `json:"student_email"`
	Title        string            `json:"title"`
	DocType      string            `json:"doc_type"`
	Institution  string            `json:"institution"`
	Description  string            `json:"description,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Document     []byte            `json:"document"`
	Public       bool              `json:"public"`
}

// Credential is the registry's credential record as returned by the API.
type Credential struct {
	ID             string            `json:"id"`
	OwnerID        string            `json:"owner_id"`
	IssuerID       string            `json:"issuer_id"`
	Title          string            `json:"title"`
	DocType        string            `json:"doc_type"`
	Institution    string            `json:"institution"`
	Description    string            `json:"description"`
	ContentAddress string            `json:"content_address"`
	TxRef          string            `json:"tx_ref"`
	BlockHeight    uint64            `json:"block_height"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Status         string            `json:"status"`
	Public         bool              `json:"public"`
	IssuedAt       time.Time         `json:"issued_at"`
}

// Snapshot is the read-only credential view returned by verifications and
// share-link access.
type Snapshot struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	DocType     string            `json:"doc_type"`
	Institution string            `json:"institution"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Status      string            `json:"status"`
	TxRef       string            `json:"tx_ref"`
	BlockHeight uint64            `json:"block_height"`
	IssuedAt    time.Time         `json:"issued_at"`
	Payload     []byte            `json:"payload,omitempty"`
}

// Receipt is the ledger anchor attached to a verification result.
type Receipt struct {
	TxRef       string `json:"tx_ref"`
	BlockHeight uint64 `json:"block_height"`
}

// VerifyResult is the outcome of a verification call.
type VerifyResult struct {
	IsValid       bool      `json:"is_valid"`
	Reason        string    `json:"reason,omitempty"`
	Credential    *Snapshot `json:"credential,omitempty"`
	Receipt       *Receipt  `json:"receipt,omitempty"`
	Confirmations uint64    `json:"confirmations"`
	RecordID      string    `json:"record_id"`
	VerifiedAt    time.Time `json:"verified_at"`
}

// HistoryRecord is one audit entry from the verification history.
type HistoryRecord struct {
	ID            string    `json:"id"`
	CredentialID  *string   `json:"credential_id"`
	Method        string    `json:"method"`
	Result        bool      `json:"result"`
	Reason        string    `json:"reason"`
	TxRef         string    `json:"tx_ref"`
	Confirmations uint64    `json:"confirmations"`
	VerifiedAt    time.Time `json:"verified_at"`
}

// HistoryPage is one page of audit entries.
type HistoryPage struct {
	Records []HistoryRecord `json:"records"`
	Total   int             `json:"total"`
	PageNum int             `json:"page"`
	Limit   int             `json:"limit"`
	Pages   int             `json:"pages"`
}

// ShareLinkRequest is the payload for CreateShareLink.
type ShareLinkRequest struct {
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	Password      string     `json:"password,omitempty"`
	OneTimeUse    bool       `json:"one_time_use"`
	MaxViews      *int       `json:"max_views,omitempty"`
	AllowDownload *bool      `json:"allow_download,omitempty"`
	NotifyEmail   string     `json:"notify_email,omitempty"`
}

// ShareLink is a share-link record as returned by the API.
type ShareLink struct {
	ID           string     `json:"id"`
	CredentialID string     `json:"credential_id"`
	ShareID      string     `json:"share_id"`
	Link         string     `json:"link"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Active       bool       `json:"active"`
	ViewCount    int        `json:"view_count"`
}

// Client is the CredAnchor SDK entry point.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	bearerToken string
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBearerToken attaches an identity-provider JWT to every request.
func WithBearerToken(token string) Option {
	return func(c *Client) { c.bearerToken = token }
}

// New creates a Client connected to baseURL.
//
//	c := client.New("http://localhost:8080", client.WithBearerToken(token))
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Issue anchors a new credential. Requires an institution or admin token.
func (c *Client) Issue(ctx context.Context, req IssueRequest) (*Credential, error) {
	var cred Credential
	if err := c.call(ctx, http.MethodPost, "/api/v1/credentials", req, &cred); err != nil {
		return nil, err
	}
	return &cred, nil
}

// GetCredential fetches one credential by ID.
func (c *Client) GetCredential(ctx context.Context, id string) (*Credential, error) {
	var cred Credential
	if err := c.call(ctx, http.MethodGet, "/api/v1/credentials/"+id, nil, &cred); err != nil {
		return nil, err
	}
	return &cred, nil
}

// ListCredentials returns the caller's own credentials.
func (c *Client) ListCredentials(ctx context.Context) ([]Credential, error) {
	var wrapper struct {
		Credentials []Credential `json:"credentials"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/credentials", nil, &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Credentials, nil
}

// Revoke permanently revokes a credential.
func (c *Client) Revoke(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodPost, "/api/v1/credentials/"+id+"/revoke", nil, nil)
}

// VerifyDocument uploads a document and verifies its content hash.
func (c *Client) VerifyDocument(ctx context.Context, document []byte) (*VerifyResult, error) {
	return c.verify(ctx, "/api/v1/verify/document", map[string]any{"document": document})
}

// VerifyHash verifies a precomputed document hash.
func (c *Client) VerifyHash(ctx context.Context, hash string) (*VerifyResult, error) {
	return c.verify(ctx, "/api/v1/verify/document", map[string]any{"hash": hash})
}

// VerifyQR verifies a scanned QR token.
func (c *Client) VerifyQR(ctx context.Context, token string) (*VerifyResult, error) {
	return c.verify(ctx, "/api/v1/verify/qr", map[string]any{"token": token})
}

// VerifyByID verifies by credential or share identifier.
func (c *Client) VerifyByID(ctx context.Context, id string) (*VerifyResult, error) {
	return c.verify(ctx, "/api/v1/verify/id", map[string]any{"credential_id": id})
}

func (c *Client) verify(ctx context.Context, path string, payload map[string]any) (*VerifyResult, error) {
	var result VerifyResult
	if err := c.call(ctx, http.MethodPost, path, payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// History returns a page of the caller's verification audit trail.
func (c *Client) History(ctx context.Context, page, limit int) (*HistoryPage, error) {
	path := fmt.Sprintf("/api/v1/verify/history?page=%d&limit=%d", page, limit)
	var result HistoryPage
	if err := c.call(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateShareLink issues a bounded share link for a credential the caller
// owns.
func (c *Client) CreateShareLink(ctx context.Context, credentialID string, req ShareLinkRequest) (*ShareLink, error) {
	var link ShareLink
	if err := c.call(ctx, http.MethodPost, "/api/v1/credentials/"+credentialID+"/share", req, &link); err != nil {
		return nil, err
	}
	return &link, nil
}

// AccessShareLink consumes one view of a share link and returns the
// shared credential snapshot.
func (c *Client) AccessShareLink(ctx context.Context, shareID, password string) (*Snapshot, error) {
	var payload any
	if password != "" {
		payload = map[string]string{"password": password}
	}

	status, body, err := c.doStatusBody(ctx, http.MethodPost, "/api/v1/shares/"+shareID+"/access", payload)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
	case http.StatusGone:
		return nil, ErrShareLinkGone
	case http.StatusUnauthorized:
		return nil, ErrSharePassword
	case http.StatusNotFound:
		return nil, fmt.Errorf("share link not found")
	default:
		return nil, fmt.Errorf("server error %d: %s", status, string(body))
	}

	var wrapper struct {
		Credential *Snapshot `json:"credential"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("decode share response: %w", err)
	}
	return wrapper.Credential, nil
}

// call executes a JSON request against the registry, decoding the
// response into out when non-nil.
func (c *Client) call(ctx context.Context, method, path string, payload, out any) error {
	status, body, err := c.doStatusBody(ctx, method, path, payload)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return fmt.Errorf("not found: %s", path)
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return fmt.Errorf("unauthorized: %s", string(body))
	}
	if status >= 300 {
		return fmt.Errorf("server error %d: %s", status, string(body))
	}
	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) doStatusBody(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}
