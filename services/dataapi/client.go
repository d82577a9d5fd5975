// Package dataapi is the HTTP client for the marketplace data API, the
// system of record for frameworks, suppliers, declarations, agreements,
// briefs and services. Every response arrives wrapped in a single-key JSON
// envelope which the client unwraps before returning typed models.
package dataapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/risicle/digitalmarketplace-supplier-frontend/models"
	"github.com/risicle/digitalmarketplace-supplier-frontend/pkg/apierrors"
)

// Client handles communication with the data API
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// New creates a new data API client
func New(baseURL, authToken string) *Client {
	return &Client{
		baseURL:   baseURL,
		authToken: authToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// do sends a request and decodes the response body into out (when non-nil).
// Non-2xx responses are decoded into apierrors so the handler layer can map
// them straight onto the right page.
func (c *Client) do(ctx context.Context, method, path string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		reqBody, err := json.Marshal(payload)
		if err != nil {
			return apierrors.Internal("failed to marshal request", err)
		}
		body = bytes.NewBuffer(reqBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return apierrors.Internal("failed to create request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.authToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apierrors.Internal("data API request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return apierrors.Internal("failed to read data API response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Warn("data API returned error", "method", method, "path", path, "status", resp.StatusCode)
		return decodeError(resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return apierrors.Internal("failed to parse data API response", err)
		}
	}
	return nil
}

// decodeError turns an error response body into a typed error. The API
// reports validation failures as {"error": {"field": "code"}} and everything
// else as {"error": "message"}.
func decodeError(status int, body []byte) error {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Error) > 0 {
		var message string
		if json.Unmarshal(envelope.Error, &message) == nil {
			return apierrors.Upstream(status, message, nil)
		}
		var fieldErrors map[string]string
		if json.Unmarshal(envelope.Error, &fieldErrors) == nil {
			return apierrors.Upstream(status, "the submitted data failed validation", fieldErrors)
		}
	}
	return apierrors.Upstream(status, fmt.Sprintf("data API returned status %d", status), nil)
}

// withUpdatedBy wraps a payload with the audit identity the API requires on
// every write.
func withUpdatedBy(key string, value interface{}, userEmail string) map[string]interface{} {
	return map[string]interface{}{
		key:          value,
		"updated_by": userEmail,
	}
}

// GetFramework fetches a single framework by slug
func (c *Client) GetFramework(ctx context.Context, slug string) (*models.Framework, error) {
	var envelope struct {
		Frameworks models.Framework `json:"frameworks"`
	}
	if err := c.do(ctx, http.MethodGet, "/frameworks/"+slug, nil, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Frameworks, nil
}

// FindFrameworks fetches all frameworks
func (c *Client) FindFrameworks(ctx context.Context) ([]models.Framework, error) {
	var envelope struct {
		Frameworks []models.Framework `json:"frameworks"`
	}
	if err := c.do(ctx, http.MethodGet, "/frameworks", nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.Frameworks, nil
}

// GetSupplierFramework fetches the supplier's interest record for one
// framework, including their declaration and agreement state.
func (c *Client) GetSupplierFramework(ctx context.Context, supplierID int, slug string) (*models.SupplierFramework, error) {
	var envelope struct {
		FrameworkInterest models.SupplierFramework `json:"frameworkInterest"`
	}
	path := fmt.Sprintf("/suppliers/%d/frameworks/%s", supplierID, slug)
	if err := c.do(ctx, http.MethodGet, path, nil, &envelope); err != nil {
		return nil, err
	}
	return &envelope.FrameworkInterest, nil
}

// RegisterFrameworkInterest records that the supplier has started applying
// to a framework. Registering twice is harmless.
func (c *Client) RegisterFrameworkInterest(ctx context.Context, supplierID int, slug, userEmail string) (*models.SupplierFramework, error) {
	var envelope struct {
		FrameworkInterest models.SupplierFramework `json:"frameworkInterest"`
	}
	path := fmt.Sprintf("/suppliers/%d/frameworks/%s", supplierID, slug)
	payload := map[string]interface{}{"updated_by": userEmail}
	if err := c.do(ctx, http.MethodPut, path, payload, &envelope); err != nil {
		return nil, err
	}
	return &envelope.FrameworkInterest, nil
}

// SetPrefillDeclaration records which earlier framework declaration should
// prefill this one. An empty slug clears the choice.
func (c *Client) SetPrefillDeclaration(ctx context.Context, supplierID int, slug, prefillSlug, userEmail string) error {
	var prefill interface{}
	if prefillSlug != "" {
		prefill = prefillSlug
	}
	path := fmt.Sprintf("/suppliers/%d/frameworks/%s", supplierID, slug)
	payload := withUpdatedBy("frameworkInterest", map[string]interface{}{
		"prefillDeclarationFromFrameworkSlug": prefill,
	}, userEmail)
	return c.do(ctx, http.MethodPost, path, payload, nil)
}

// GetSupplierDeclaration fetches the supplier's declaration for a framework
func (c *Client) GetSupplierDeclaration(ctx context.Context, supplierID int, slug string) (models.Declaration, error) {
	var envelope struct {
		Declaration models.Declaration `json:"declaration"`
	}
	path := fmt.Sprintf("/suppliers/%d/frameworks/%s/declaration", supplierID, slug)
	if err := c.do(ctx, http.MethodGet, path, nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.Declaration, nil
}

// UpdateSupplierDeclaration replaces the supplier's declaration content
func (c *Client) UpdateSupplierDeclaration(ctx context.Context, supplierID int, slug string, declaration models.Declaration, userEmail string) (models.Declaration, error) {
	var envelope struct {
		Declaration models.Declaration `json:"declaration"`
	}
	path := fmt.Sprintf("/suppliers/%d/frameworks/%s/declaration", supplierID, slug)
	if err := c.do(ctx, http.MethodPut, path, withUpdatedBy("declaration", declaration, userEmail), &envelope); err != nil {
		return nil, err
	}
	return envelope.Declaration, nil
}

// CompleteDeclaration marks the declaration as complete by writing it back
// with a complete status.
func (c *Client) CompleteDeclaration(ctx context.Context, supplierID int, slug string, declaration models.Declaration, userEmail string) (models.Declaration, error) {
	updated := models.Declaration{}
	for k, v := range declaration {
		updated[k] = v
	}
	updated["status"] = string(models.DeclarationComplete)
	return c.UpdateSupplierDeclaration(ctx, supplierID, slug, updated, userEmail)
}

// CreateFrameworkAgreement creates a draft framework agreement for the
// supplier and returns it with its assigned id.
func (c *Client) CreateFrameworkAgreement(ctx context.Context, supplierID int, slug, userEmail string) (*models.FrameworkAgreement, error) {
	var envelope struct {
		Agreement models.FrameworkAgreement `json:"agreement"`
	}
	payload := withUpdatedBy("agreement", map[string]interface{}{
		"supplierId":    supplierID,
		"frameworkSlug": slug,
	}, userEmail)
	if err := c.do(ctx, http.MethodPost, "/agreements", payload, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Agreement, nil
}

// GetFrameworkAgreement fetches an agreement by id
func (c *Client) GetFrameworkAgreement(ctx context.Context, agreementID int) (*models.FrameworkAgreement, error) {
	var envelope struct {
		Agreement models.FrameworkAgreement `json:"agreement"`
	}
	path := fmt.Sprintf("/agreements/%d", agreementID)
	if err := c.do(ctx, http.MethodGet, path, nil, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Agreement, nil
}

// UpdateFrameworkAgreement patches fields on a draft agreement, such as the
// signer details or the uploaded signature page path.
func (c *Client) UpdateFrameworkAgreement(ctx context.Context, agreementID int, fields map[string]interface{}, userEmail string) error {
	path := fmt.Sprintf("/agreements/%d", agreementID)
	return c.do(ctx, http.MethodPost, path, withUpdatedBy("agreement", fields, userEmail), nil)
}

// SignFrameworkAgreement marks the agreement as signed on behalf of the
// supplier, recording who uploaded it.
func (c *Client) SignFrameworkAgreement(ctx context.Context, agreementID, userID int, userEmail string) (*models.FrameworkAgreement, error) {
	var envelope struct {
		Agreement models.FrameworkAgreement `json:"agreement"`
	}
	path := fmt.Sprintf("/agreements/%d/sign", agreementID)
	payload := withUpdatedBy("agreement", map[string]interface{}{
		"signedAgreementDetails": map[string]interface{}{"uploaderUserId": userID},
	}, userEmail)
	if err := c.do(ctx, http.MethodPost, path, payload, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Agreement, nil
}

// AgreeFrameworkVariation records the supplier's acceptance of a contract
// variation.
func (c *Client) AgreeFrameworkVariation(ctx context.Context, supplierID int, slug, variationID string, userID int, userEmail string) (*models.AgreedVariation, error) {
	var envelope struct {
		AgreedVariations models.AgreedVariation `json:"agreedVariations"`
	}
	path := fmt.Sprintf("/suppliers/%d/frameworks/%s/variation/%s", supplierID, slug, variationID)
	payload := withUpdatedBy("agreedVariations", map[string]interface{}{
		"agreedUserId": userID,
	}, userEmail)
	if err := c.do(ctx, http.MethodPut, path, payload, &envelope); err != nil {
		return nil, err
	}
	return &envelope.AgreedVariations, nil
}

// GetBrief fetches a published brief by id
func (c *Client) GetBrief(ctx context.Context, briefID int) (*models.Brief, error) {
	var envelope struct {
		Briefs models.Brief `json:"briefs"`
	}
	path := fmt.Sprintf("/briefs/%d", briefID)
	if err := c.do(ctx, http.MethodGet, path, nil, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Briefs, nil
}

// FindBriefResponses lists the supplier's responses to a brief
func (c *Client) FindBriefResponses(ctx context.Context, briefID, supplierID int) ([]models.BriefResponse, error) {
	var envelope struct {
		BriefResponses []models.BriefResponse `json:"briefResponses"`
	}
	query := url.Values{}
	query.Set("brief_id", strconv.Itoa(briefID))
	query.Set("supplier_id", strconv.Itoa(supplierID))
	if err := c.do(ctx, http.MethodGet, "/brief-responses?"+query.Encode(), nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.BriefResponses, nil
}

// CreateBriefResponse creates a draft response to a brief from the
// submitted answers.
func (c *Client) CreateBriefResponse(ctx context.Context, briefID, supplierID int, data map[string]interface{}, userEmail string) (*models.BriefResponse, error) {
	var envelope struct {
		BriefResponses models.BriefResponse `json:"briefResponses"`
	}
	response := map[string]interface{}{
		"briefId":    briefID,
		"supplierId": supplierID,
	}
	for k, v := range data {
		response[k] = v
	}
	payload := withUpdatedBy("briefResponses", response, userEmail)
	if err := c.do(ctx, http.MethodPost, "/brief-responses", payload, &envelope); err != nil {
		return nil, err
	}
	return &envelope.BriefResponses, nil
}

// SubmitBriefResponse finalises a draft brief response
func (c *Client) SubmitBriefResponse(ctx context.Context, briefResponseID int, userEmail string) (*models.BriefResponse, error) {
	var envelope struct {
		BriefResponses models.BriefResponse `json:"briefResponses"`
	}
	path := fmt.Sprintf("/brief-responses/%d/submit", briefResponseID)
	payload := map[string]interface{}{"updated_by": userEmail}
	if err := c.do(ctx, http.MethodPost, path, payload, &envelope); err != nil {
		return nil, err
	}
	return &envelope.BriefResponses, nil
}

// FindServices lists the supplier's published services, optionally filtered
// by framework, lot and specialist role.
func (c *Client) FindServices(ctx context.Context, supplierID int, frameworkSlug, lotSlug, role string) ([]models.Service, error) {
	var envelope struct {
		Services []models.Service `json:"services"`
	}
	query := url.Values{}
	query.Set("supplier_id", strconv.Itoa(supplierID))
	if frameworkSlug != "" {
		query.Set("framework", frameworkSlug)
	}
	if lotSlug != "" {
		query.Set("lot", lotSlug)
	}
	if role != "" {
		query.Set("role", role)
	}
	if err := c.do(ctx, http.MethodGet, "/services?"+query.Encode(), nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.Services, nil
}

// FindDraftServices lists the supplier's draft services for a framework
func (c *Client) FindDraftServices(ctx context.Context, supplierID int, frameworkSlug string) ([]models.DraftService, error) {
	var envelope struct {
		Services []models.DraftService `json:"services"`
	}
	query := url.Values{}
	query.Set("supplier_id", strconv.Itoa(supplierID))
	if frameworkSlug != "" {
		query.Set("framework", frameworkSlug)
	}
	if err := c.do(ctx, http.MethodGet, "/draft-services?"+query.Encode(), nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.Services, nil
}

// CreateAuditEvent records a frontend-originated audit event. Audit
// failures are logged by callers but never fail the user's request.
func (c *Client) CreateAuditEvent(ctx context.Context, auditType, user string, data map[string]interface{}, objectType, objectID string) error {
	payload := map[string]interface{}{
		"auditEvents": map[string]interface{}{
			"type":       auditType,
			"user":       user,
			"data":       data,
			"objectType": objectType,
			"objectId":   objectID,
		},
	}
	return c.do(ctx, http.MethodPost, "/audit-events", payload, nil)
}
