package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultVersion = "latest"

// ErrNotFound indicates the referenced secret or version does not exist.
var ErrNotFound = errors.New("secrets: secret not found")

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gaxCallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// gaxCallOption mirrors the variadic option type on the generated client so
// stubs can satisfy the interface without importing gax.
type gaxCallOption = any

type clientAdapter struct {
	client *secretmanager.Client
}

func (a clientAdapter) AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gaxCallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	return a.client.AccessSecretVersion(ctx, req)
}

func (a clientAdapter) Close() error { return a.client.Close() }

// Fetcher resolves secret:// references using Google Secret Manager with in-process caching.
type Fetcher struct {
	client         secretManagerClient
	defaultProject string
	logger         *zap.Logger

	mu    sync.RWMutex
	cache map[string]string
}

// Option customises Fetcher construction.
type Option func(*fetcherConfig)

type fetcherConfig struct {
	defaultProject string
	logger         *zap.Logger
	client         secretManagerClient
	clientOpts     []option.ClientOption
}

// WithDefaultProject sets the project used for refs that omit one.
func WithDefaultProject(projectID string) Option {
	return func(cfg *fetcherConfig) {
		cfg.defaultProject = strings.TrimSpace(projectID)
	}
}

// WithLogger attaches a logger used for non-fatal resolution warnings.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *fetcherConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithSecretManagerClient injects a pre-built client, primarily for tests.
func WithSecretManagerClient(client secretManagerClient) Option {
	return func(cfg *fetcherConfig) {
		cfg.client = client
	}
}

// WithClientOptions appends options used when dialling the real client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *fetcherConfig) {
		cfg.clientOpts = append(cfg.clientOpts, opts...)
	}
}

// NewFetcher constructs a Fetcher ready to resolve secret references.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	cfg := fetcherConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	client := cfg.client
	if client == nil {
		real, err := secretmanager.NewClient(ctx, cfg.clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("secrets: create client: %w", err)
		}
		client = clientAdapter{client: real}
	}

	return &Fetcher{
		client:         client,
		defaultProject: cfg.defaultProject,
		logger:         cfg.logger,
		cache:          make(map[string]string),
	}, nil
}

// Close releases the underlying Secret Manager client.
func (f *Fetcher) Close() error {
	if f == nil || f.client == nil {
		return nil
	}
	return f.client.Close()
}

// Resolve fetches the secret value referenced by ref. Accepted forms are
// secret://name, secret://project/name and secret://project/name#version.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	if f == nil {
		return "", errors.New("secrets: fetcher is nil")
	}

	parsed, err := parseReference(ref)
	if err != nil {
		return "", err
	}

	project := parsed.project
	if project == "" {
		project = f.defaultProject
	}
	if project == "" {
		return "", fmt.Errorf("secrets: no project for ref %q", maskReference(ref))
	}

	name := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, parsed.name, parsed.version)

	f.mu.RLock()
	cached, ok := f.cache[name]
	f.mu.RUnlock()
	if ok {
		return cached, nil
	}

	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", fmt.Errorf("%w: %s", ErrNotFound, maskReference(ref))
		}
		return "", fmt.Errorf("secrets: access %s: %w", maskReference(ref), err)
	}
	if resp == nil || resp.Payload == nil {
		return "", fmt.Errorf("secrets: empty payload for %s", maskReference(ref))
	}

	value := string(resp.Payload.Data)

	f.mu.Lock()
	f.cache[name] = value
	f.mu.Unlock()

	return value, nil
}

// Invalidate drops any cached value for the given reference.
func (f *Fetcher) Invalidate(ref string) {
	parsed, err := parseReference(ref)
	if err != nil {
		return
	}
	project := parsed.project
	if project == "" {
		project = f.defaultProject
	}
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, parsed.name, parsed.version)

	f.mu.Lock()
	delete(f.cache, name)
	f.mu.Unlock()
}

type parsedReference struct {
	project string
	name    string
	version string
}

func parseReference(ref string) (parsedReference, error) {
	trimmed := strings.TrimSpace(ref)
	if strings.HasPrefix(trimmed, "sm://") {
		trimmed = "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	if !strings.HasPrefix(trimmed, "secret://") {
		return parsedReference{}, fmt.Errorf("secrets: unsupported reference %q", maskReference(ref))
	}

	body := strings.TrimPrefix(trimmed, "secret://")
	version := defaultVersion
	if idx := strings.LastIndex(body, "#"); idx >= 0 {
		if v := strings.TrimSpace(body[idx+1:]); v != "" {
			version = v
		}
		body = body[:idx]
	}

	parts := strings.Split(strings.Trim(body, "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		return parsedReference{name: parts[0], version: version}, nil
	case len(parts) == 2 && parts[0] != "" && parts[1] != "":
		return parsedReference{project: parts[0], name: parts[1], version: version}, nil
	default:
		return parsedReference{}, fmt.Errorf("secrets: malformed reference %q", maskReference(ref))
	}
}

func maskReference(ref string) string {
	trimmed := strings.TrimSpace(ref)
	if len(trimmed) <= 12 {
		return trimmed
	}
	return trimmed[:12] + "..."
}
