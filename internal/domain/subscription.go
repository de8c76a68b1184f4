package domain

import "time"

// Subscription is a registered webhook endpoint owned by an organization.
// The signing secret is only returned in full at creation and rotation time;
// everywhere else callers see SecretPrefix().
type Subscription struct {
	ID              string            `json:"id"`
	OrganizationID  string            `json:"organization_id"`
	Name            string            `json:"name"`
	URL             string            `json:"url"`
	Secret          string            `json:"-"`
	Events          []string          `json:"events"`
	CustomHeaders   map[string]string `json:"custom_headers,omitempty"`
	IsActive        bool              `json:"is_active"`
	SuccessCount    int               `json:"success_count"`
	FailureCount    int               `json:"failure_count"`
	LastTriggeredAt *time.Time        `json:"last_triggered_at,omitempty"`
	LastSuccessAt   *time.Time        `json:"last_success_at,omitempty"`
	LastFailureAt   *time.Time        `json:"last_failure_at,omitempty"`
	LastError       *string           `json:"last_error,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// SecretPrefix returns the short, loggable form of the signing secret.
func (s *Subscription) SecretPrefix() string {
	const visible = len("whsec_") + 8
	if len(s.Secret) <= visible {
		return s.Secret
	}
	return s.Secret[:visible] + "..."
}

// Subscribed reports whether the subscription is interested in the event name.
func (s *Subscription) Subscribed(event string) bool {
	for _, e := range s.Events {
		if e == event {
			return true
		}
	}
	return false
}

type CreateSubscriptionRequest struct {
	Name          string            `json:"name"`
	URL           string            `json:"url"`
	Events        []string          `json:"events"`
	CustomHeaders map[string]string `json:"custom_headers,omitempty"`
}

type UpdateSubscriptionRequest struct {
	Name          *string            `json:"name,omitempty"`
	URL           *string            `json:"url,omitempty"`
	Events        *[]string          `json:"events,omitempty"`
	CustomHeaders *map[string]string `json:"custom_headers,omitempty"`
	IsActive      *bool              `json:"is_active,omitempty"`
}

// CreateSubscriptionResponse is the only place the full secret crosses the API.
type CreateSubscriptionResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	URL    string `json:"url"`
	Secret string `json:"secret"`
}

type RotateSecretResponse struct {
	ID     string `json:"id"`
	Secret string `json:"secret"`
}

// SubscriptionView is the masked representation returned by list/get.
type SubscriptionView struct {
	Subscription
	SecretPrefix string `json:"secret_prefix"`
}

// NewSubscriptionView masks the secret for external callers.
func NewSubscriptionView(s Subscription) SubscriptionView {
	v := SubscriptionView{Subscription: s, SecretPrefix: s.SecretPrefix()}
	v.Subscription.Secret = ""
	return v
}
