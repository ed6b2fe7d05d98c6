package ahjo

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ahjosync/internal/config"
	"ahjosync/internal/domain"
)

// Client fetches records from the Ahjo case-management API.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// New builds a client from config. The bearer credential is resolved
// from the environment named by the config.
func New(cfg *config.Config) *Client {
	return &Client{
		BaseURL:    cfg.Remote.BaseURL,
		Token:      cfg.Token(),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// GetCase fetches a single case by its natural id.
func (c *Client) GetCase(ctx context.Context, id, lang string) (domain.Case, error) {
	const op = "get case"
	var w wireCase
	if err := c.get(ctx, op, "cases/"+url.PathEscape(id), lang, nil, &w); err != nil {
		return domain.Case{}, err
	}
	return w.toDomain(op)
}

// GetOrganization fetches a single organization by id.
func (c *Client) GetOrganization(ctx context.Context, id, lang string) (domain.Organization, error) {
	const op = "get organization"
	var w wireOrganization
	if err := c.get(ctx, op, "organizations/"+url.PathEscape(id), lang, nil, &w); err != nil {
		return domain.Organization{}, err
	}
	return w.toDomain(op)
}

// GetDecisionmaker fetches a decisionmaker, which is an organization
// plus its composition in the requested language.
func (c *Client) GetDecisionmaker(ctx context.Context, id, lang string) (domain.Decisionmaker, error) {
	const op = "get decisionmaker"
	var w wireDecisionmaker
	if err := c.get(ctx, op, "decisionmakers/"+url.PathEscape(id), lang, nil, &w); err != nil {
		return domain.Decisionmaker{}, err
	}
	return w.toDecisionmaker(op, lang)
}

func (w wireDecisionmaker) toDecisionmaker(op, lang string) (domain.Decisionmaker, error) {
	org, err := w.wireOrganization.toDomain(op)
	if err != nil {
		return domain.Decisionmaker{}, err
	}
	if w.Language != "" {
		lang = w.Language
	}
	return domain.Decisionmaker{Organization: org, Composition: w.Composition, Language: lang}, nil
}

// GetTrustee fetches a single trustee by id.
func (c *Client) GetTrustee(ctx context.Context, id, lang string) (domain.Trustee, error) {
	const op = "get trustee"
	var w wireTrustee
	if err := c.get(ctx, op, "trustees/"+url.PathEscape(id), lang, nil, &w); err != nil {
		return domain.Trustee{}, err
	}
	return w.toDomain(op)
}

func (c *Client) get(ctx context.Context, op, endpoint, lang string, query url.Values, out any) error {
	if c.BaseURL == "" {
		return errorf(KindConfig, op, "remote base URL not configured")
	}
	if c.Token == "" {
		return errorf(KindAuth, op, "bearer credential missing")
	}
	if query == nil {
		query = url.Values{}
	}
	if lang != "" {
		query.Set("apireqlang", lang)
	}
	u := strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	if enc := query.Encode(); enc != "" {
		u += "?" + enc
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return newError(KindConfig, op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return newError(KindUnavailable, op, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errorf(KindAuth, op, "remote rejected credential: status %d", resp.StatusCode)
	case unavailableStatus(resp.StatusCode):
		return errorf(KindUnavailable, op, "remote down: status %d", resp.StatusCode)
	case resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errorf(KindTransport, op, "status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return newError(KindDecode, op, err)
	}
	return nil
}

// unavailableStatus reports whether the status means the remote system
// as a whole is down rather than this one request being bad.
func unavailableStatus(status int) bool {
	switch status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func dateQuery(after, before time.Time) url.Values {
	q := url.Values{}
	q.Set("handlingdate_start", after.UTC().Format(time.RFC3339))
	q.Set("handlingdate_end", before.UTC().Format(time.RFC3339))
	return q
}
