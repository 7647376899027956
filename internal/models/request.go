package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRequest marks requests that cannot be processed. It is never retried.
var ErrInvalidRequest = errors.New("invalid integration request")

// IntegrationRequest describes the integration the caller wants generated.
type IntegrationRequest struct {
	ServiceName        string   `json:"service_name"`
	IntegrationType    string   `json:"integration_type"`
	Description        string   `json:"description"`
	AuthenticationType string   `json:"authentication_type,omitempty"`
	Endpoints          []string `json:"endpoints,omitempty"`
}

// Normalize returns a copy with trimmed fields and lower-cased type hints.
func (r IntegrationRequest) Normalize() IntegrationRequest {
	out := IntegrationRequest{
		ServiceName:        strings.TrimSpace(r.ServiceName),
		IntegrationType:    strings.ToLower(strings.TrimSpace(r.IntegrationType)),
		Description:        strings.TrimSpace(r.Description),
		AuthenticationType: strings.ToLower(strings.TrimSpace(r.AuthenticationType)),
	}
	for _, ep := range r.Endpoints {
		if ep = strings.TrimSpace(ep); ep != "" {
			out.Endpoints = append(out.Endpoints, ep)
		}
	}
	return out
}

// Validate reports whether the request carries the mandatory fields.
func (r IntegrationRequest) Validate() error {
	if strings.TrimSpace(r.ServiceName) == "" {
		return fmt.Errorf("%w: service_name is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.Description) == "" {
		return fmt.Errorf("%w: description is required", ErrInvalidRequest)
	}
	return nil
}
