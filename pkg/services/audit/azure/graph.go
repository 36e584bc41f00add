package azure

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
)

const (
	graphBaseURL = "https://graph.microsoft.com/v1.0"
	graphScope   = "https://graph.microsoft.com/.default"
)

// GraphUser is the subset of a Microsoft Graph directory user the
// evaluator needs. Created carries the raw createdDateTime string; it may
// be empty.
type GraphUser struct {
	PrincipalName string `json:"userPrincipalName"`
	UserType      string `json:"userType"`
	Created       string `json:"createdDateTime"`
}

type GraphServicePrincipal struct {
	DisplayName string `json:"appDisplayName"`
	ID          string `json:"id"`
	Created     string `json:"createdDateTime"`
}

// GraphClient is a minimal Microsoft Graph REST client. The directory
// listings the audit needs are plain GETs, so no SDK is involved; the
// token comes from the same credential used for the ARM clients.
type GraphClient struct {
	credential azcore.TokenCredential
	httpClient *http.Client
	baseURL    string
}

func NewGraphClient(credential azcore.TokenCredential) *GraphClient {
	return &GraphClient{
		credential: credential,
		httpClient: http.DefaultClient,
		baseURL:    graphBaseURL,
	}
}

func (c *GraphClient) ListUsers(ctx context.Context) ([]GraphUser, error) {
	var users []GraphUser
	if err := c.get(ctx, "/users", &users); err != nil {
		return nil, fmt.Errorf("failed to list directory users: %w", err)
	}
	return users, nil
}

func (c *GraphClient) ListServicePrincipals(ctx context.Context) ([]GraphServicePrincipal, error) {
	var principals []GraphServicePrincipal
	if err := c.get(ctx, "/servicePrincipals", &principals); err != nil {
		return nil, fmt.Errorf("failed to list service principals: %w", err)
	}
	return principals, nil
}

func (c *GraphClient) get(ctx context.Context, path string, out any) error {
	token, err := c.credential.GetToken(ctx, policy.TokenRequestOptions{
		Scopes: []string{graphScope},
	})
	if err != nil {
		return fmt.Errorf("failed to acquire Graph token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("graph request %s returned status %d", path, resp.StatusCode)
	}

	// Graph wraps collections in a "value" envelope.
	var envelope struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode graph response: %w", err)
	}
	return json.Unmarshal(envelope.Value, out)
}
