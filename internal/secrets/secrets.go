// Package secrets resolves infrastructure credentials from GCP Secret
// Manager at startup: a fixed-name infrastructure-credential resolver,
// rather than a per-user secret CRUD service — this system has no
// per-user secrets, only the relational store's password and the
// legacy store's S3 secret key, so CRUD on dynamically named secrets
// shrinks to a single read-only Resolve.
package secrets

import (
	"context"
	"fmt"
	"net/url"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// Resolver reads the latest version of a named secret from GCP Secret
// Manager.
type Resolver struct {
	client    *secretmanager.Client
	projectID string
}

func NewResolver(ctx context.Context, projectID string) (*Resolver, error) {
	if projectID == "" {
		return nil, fmt.Errorf("secrets: GCP project id is not set")
	}
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("secrets: create Secret Manager client: %w", err)
	}
	return &Resolver{client: client, projectID: projectID}, nil
}

// Resolve returns the latest version's payload for the named secret.
func (r *Resolver) Resolve(ctx context.Context, secretID string) (string, error) {
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", r.projectID, secretID)
	result, err := r.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("secrets: access secret %q: %w", secretID, err)
	}
	return string(result.Payload.Data), nil
}

// OverrideRelationalPassword splices a resolved password into the
// user-info component of a postgres DSN, leaving every other part of
// the URL untouched.
func OverrideRelationalPassword(dsn, password string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("secrets: parse relational DSN: %w", err)
	}
	if u.User == nil {
		return "", fmt.Errorf("secrets: relational DSN has no user-info component to override")
	}
	u.User = url.UserPassword(u.User.Username(), password)
	return u.String(), nil
}

const (
	// RelationalPasswordSecretID names the secret holding the
	// relational store's password.
	RelationalPasswordSecretID = "ledger-relational-password"
	// DocumentSecretKeySecretID names the secret holding the legacy
	// document store's S3 secret key.
	DocumentSecretKeySecretID = "ledger-document-secret-key"
)
