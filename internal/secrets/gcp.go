package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrNoProject is returned when the GCP backend has no project ID.
var ErrNoProject = errors.New("google cloud project id is required")

// GCPConfig configures the Google Secret Manager backend.
type GCPConfig struct {
	ProjectID string
	// CredentialsJSON is a service account key. Empty means application
	// default credentials.
	CredentialsJSON string
}

// secretManager is the subset of the Secret Manager API the backend uses.
type secretManager interface {
	access(ctx context.Context, name string) ([]byte, error)
	get(ctx context.Context, name string) error
	list(ctx context.Context, parent string) ([]string, error)
	Close() error
}

// GCPBackend reads secrets from Google Secret Manager.
type GCPBackend struct {
	projectID string
	client    secretManager
	logger    *slog.Logger
}

// NewGCPBackend dials Secret Manager.
func NewGCPBackend(ctx context.Context, cfg GCPConfig, logger *slog.Logger) (*GCPBackend, error) {
	if cfg.ProjectID == "" {
		return nil, ErrNoProject
	}
	if logger == nil {
		logger = slog.Default()
	}

	var opts []option.ClientOption
	if cfg.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
		logger.Info("using secret manager credentials from environment")
	} else {
		logger.Info("using application default credentials for secret manager")
	}

	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating secret manager client: %w", err)
	}

	logger.Info("secret manager initialized", "project_id", cfg.ProjectID)
	return newGCPBackend(cfg.ProjectID, &gcpClient{c: client}, logger), nil
}

func newGCPBackend(projectID string, client secretManager, logger *slog.Logger) *GCPBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &GCPBackend{projectID: projectID, client: client, logger: logger}
}

// Name identifies the backend in logs and metrics.
func (b *GCPBackend) Name() string { return "gcp" }

// AccessSecret returns the payload of a secret version.
func (b *GCPBackend) AccessSecret(ctx context.Context, name, version string) (string, error) {
	if version == "" {
		version = LatestVersion
	}
	path := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", b.projectID, name, version)
	b.logger.Debug("accessing secret", "name", path)

	data, err := b.client.access(ctx, path)
	if err != nil {
		return "", b.classify(name, version, err)
	}
	if len(data) == 0 {
		return "", newError(name, version, KindNotFound, errors.New("secret payload is empty"),
			b.notFoundHints(name)...)
	}
	return string(data), nil
}

// SecretExists reports whether the secret is defined in the project.
func (b *GCPBackend) SecretExists(ctx context.Context, name string) (bool, error) {
	err := b.client.get(ctx, fmt.Sprintf("projects/%s/secrets/%s", b.projectID, name))
	if err == nil {
		return true, nil
	}
	if status.Code(err) == codes.NotFound {
		return false, nil
	}
	return false, b.classify(name, "", err)
}

// ListSecrets returns the short names of every secret in the project.
func (b *GCPBackend) ListSecrets(ctx context.Context) ([]string, error) {
	full, err := b.client.list(ctx, "projects/"+b.projectID)
	if err != nil {
		return nil, fmt.Errorf("listing secrets: %w", err)
	}
	names := make([]string, 0, len(full))
	for _, n := range full {
		if i := strings.LastIndex(n, "/"); i >= 0 {
			n = n[i+1:]
		}
		if n != "" {
			names = append(names, n)
		}
	}
	return names, nil
}

// Close releases the client connection.
func (b *GCPBackend) Close() error {
	return b.client.Close()
}

func (b *GCPBackend) classify(name, version string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return newError(name, version, KindUnavailable, err)
	}

	switch status.Code(err) {
	case codes.NotFound:
		return newError(name, version, KindNotFound, err, b.notFoundHints(name)...)
	case codes.PermissionDenied, codes.Unauthenticated:
		return newError(name, version, KindAccessDenied, err,
			"The service account needs the Secret Manager Secret Accessor role",
			fmt.Sprintf("Grant it on project %s or on the secret %s", b.projectID, name),
			fmt.Sprintf("Or set %s in the environment as a temporary workaround", name),
		)
	case codes.DeadlineExceeded, codes.Unavailable:
		return newError(name, version, KindUnavailable, err)
	case codes.InvalidArgument:
		return newError(name, version, KindInvalid, err)
	}
	return newError(name, version, KindUnavailable, err,
		fmt.Sprintf("Check that GOOGLE_CLOUD_PROJECT_ID=%s is correct", b.projectID),
		"Verify the service account credentials",
		fmt.Sprintf("As a fallback, set %s in the environment", name),
	)
}

func (b *GCPBackend) notFoundHints(name string) []string {
	return []string{
		fmt.Sprintf("The secret %s may not exist in project %s", name, b.projectID),
		"Create it in Google Cloud Console > Secret Manager",
		fmt.Sprintf("Or set %s in the environment", name),
	}
}

type gcpClient struct {
	c *secretmanager.Client
}

func (g *gcpClient) access(ctx context.Context, name string) ([]byte, error) {
	resp, err := g.c.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return nil, err
	}
	return resp.GetPayload().GetData(), nil
}

func (g *gcpClient) get(ctx context.Context, name string) error {
	_, err := g.c.GetSecret(ctx, &secretmanagerpb.GetSecretRequest{Name: name})
	return err
}

func (g *gcpClient) list(ctx context.Context, parent string) ([]string, error) {
	it := g.c.ListSecrets(ctx, &secretmanagerpb.ListSecretsRequest{Parent: parent})
	var names []string
	for {
		s, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return names, nil
		}
		if err != nil {
			return nil, err
		}
		names = append(names, s.GetName())
	}
}

func (g *gcpClient) Close() error {
	return g.c.Close()
}
