package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/fbromtl/gouvernance-sub001/internal/adp"
	"github.com/fbromtl/gouvernance-sub001/internal/errkind"
)

const uriScheme = "adp"

var resourceDescriptions = map[string]string{
	adp.ResourceAgents:   "Agents registered in the organization",
	adp.ResourcePolicies: "Active policies of the organization",
	adp.ResourceTraces:   "Most recent audit traces (append ?limit=N, max 200)",
	adp.ResourceMatrix:   "Authorization matrix and its override rules",
}

// resourceURI returns adp://<name>.
func resourceURI(name string) string {
	return uriScheme + "://" + name
}

// parseResourceURI splits adp://traces?limit=20 into its name and params.
func parseResourceURI(raw string) (string, map[string]string, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != uriScheme || u.Host == "" {
		return "", nil, errkind.E(errkind.ErrNotFound, "unknown resource %q", raw)
	}
	params := map[string]string{}
	for k, v := range u.Query() {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	return u.Host, params, nil
}

// handleResource reads a resource with the server's configured credential.
func (s *Server) handleResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := request.Params.URI
	name, params, err := parseResourceURI(uri)
	if err != nil {
		return nil, err
	}
	out, err := s.svc.ReadResource(ctx, name, s.creds, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %s", errkind.Kind(err), errkind.Message(err))
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding resource: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
