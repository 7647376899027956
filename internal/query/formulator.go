// Package query turns an integration request into documentation search queries.
package query

import (
	"strings"

	"github.com/DeafMist/docs-radar/backend/internal/models"
	"github.com/DeafMist/docs-radar/backend/internal/processing"
)

// Formulate returns between 1 and max non-empty, de-duplicated queries ordered from
// most to least documentation-specific. max <= 0 keeps every query.
func Formulate(req models.IntegrationRequest, max int) ([]string, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req = req.Normalize()

	service := req.ServiceName
	kind := req.IntegrationType

	candidates := []string{
		join(service, kind, "official API reference"),
		join(service, kind, "documentation"),
		join(service, "developer guide", kind),
	}
	if req.AuthenticationType != "" {
		candidates = append(candidates, join(service, req.AuthenticationType, "authentication"))
	}
	candidates = append(candidates, join(service, req.Description))

	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, q := range candidates {
		if q == "" {
			continue
		}
		key := strings.ToLower(q)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, q)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out, nil
}

func join(parts ...string) string {
	return processing.CollapseWhitespace(strings.Join(parts, " "))
}
