package oci

import (
	"oras.land/oras-go/v2/registry/remote/credentials"
)

// Option configures a Backend.
type Option func(*Backend)

// WithCredentialStore sets the credential store for authentication.
func WithCredentialStore(store credentials.Store) Option {
	return func(b *Backend) {
		b.credStore = store
	}
}

// WithStaticCredentials sets static username/password credentials for a registry.
func WithStaticCredentials(registry, username, password string) Option {
	return func(b *Backend) {
		b.credStore = StaticCredentials(registry, username, password)
	}
}

// WithStaticToken sets a bearer token for a registry.
func WithStaticToken(registry, token string) Option {
	return func(b *Backend) {
		b.credStore = StaticToken(registry, token)
	}
}

// WithDockerConfig reads credentials from ~/.docker/config.json.
// If the docker config cannot be loaded the backend falls back to no credentials.
func WithDockerConfig() Option {
	return func(b *Backend) {
		store, err := DefaultCredentialStore()
		if err != nil {
			return
		}
		b.credStore = store
	}
}

// WithPlainHTTP enables plain HTTP (no TLS) for the registry.
func WithPlainHTTP(enabled bool) Option {
	return func(b *Backend) {
		b.plainHTTP = enabled
	}
}

// WithUserAgent sets the User-Agent header for requests.
func WithUserAgent(ua string) Option {
	return func(b *Backend) {
		b.userAgent = ua
	}
}
