package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"payment-engine/internal/models"
	"payment-engine/pkg/common"
)

var errNotConfigured = errors.New("gateway credentials are not configured")

// httpAdapter carries what every REST gateway adapter shares: credential
// lookup, bearer auth and status classification.
type httpAdapter struct {
	name        string
	creds       CredentialSource
	client      *http.Client
	callbackURL string
}

func (a *httpAdapter) Name() string {
	return a.name
}

func (a *httpAdapter) settings(ctx context.Context, op string) (*models.GatewayCredential, error) {
	cred, err := a.creds.Credentials(ctx, a.name)
	if err != nil {
		// Not wrapped: a missing row must not read as a missing transaction.
		return nil, permanent(a.name, op, fmt.Errorf("%w: %v", errNotConfigured, err))
	}
	if cred.SecretKey == "" || cred.BaseUrl == "" {
		return nil, permanent(a.name, op, errNotConfigured)
	}
	return cred, nil
}

func (a *httpAdapter) url(cred *models.GatewayCredential, path string) string {
	return strings.TrimRight(cred.BaseUrl, "/") + path
}

func (a *httpAdapter) headers(cred *models.GatewayCredential) map[string]string {
	return map[string]string{"Authorization": "Bearer " + cred.SecretKey}
}

func (a *httpAdapter) post(ctx context.Context, op string, cred *models.GatewayCredential, path string, payload interface{}) (*common.HTTPResponse, error) {
	resp, err := common.PostJSON(ctx, a.client, a.url(cred, path), payload, a.headers(cred))
	return a.check(op, resp, err)
}

func (a *httpAdapter) get(ctx context.Context, op string, cred *models.GatewayCredential, path string) (*common.HTTPResponse, error) {
	resp, err := common.GetJSON(ctx, a.client, a.url(cred, path), a.headers(cred))
	return a.check(op, resp, err)
}

func (a *httpAdapter) check(op string, resp *common.HTTPResponse, err error) (*common.HTTPResponse, error) {
	if err != nil {
		return nil, transient(a.name, op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, fromResponse(a.name, op, resp)
	}
	return resp, nil
}

func customerEmail(req InitializeRequest) string {
	if email := req.Metadata["email"]; email != "" {
		return email
	}
	return fmt.Sprintf("user-%s@customers.invalid", req.Metadata["user_id"])
}
