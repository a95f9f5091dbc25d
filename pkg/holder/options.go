package holder

import (
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"os"
	"time"

	"github.com/TBD54566975/ssi-sdk/did/resolution"
	"github.com/pkg/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tbd54566975/ssi-holder/internal/keyaccess"
	"github.com/tbd54566975/ssi-holder/pkg/trust"
)

const defaultTimeout = 30 * time.Second

// DefaultResolutionMethods are the DID methods resolved without a universal resolver.
var DefaultResolutionMethods = []string{"key", "web", "pkh", "peer"}

// TLSConfig points at PEM files used by the holder's HTTP client. All fields are optional.
type TLSConfig struct {
	CAFile   string
	CertFile string
	KeyFile  string
}

type options struct {
	client               *http.Client
	timeout              time.Duration
	tls                  *TLSConfig
	resolver             resolution.Resolver
	resolutionMethods    []string
	universalResolverURL string
	resolutionCacheTTL   time.Duration
	policy               trust.Policy
	holderKey            *keyaccess.JWKKeyAccess
}

// Option configures a Holder.
type Option func(*options)

// WithHTTPClient replaces the client used to reach verifiers. Timeout and TLS options are ignored when set.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.client = client
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.timeout = timeout
	}
}

// WithTLS loads a CA bundle and optionally a client certificate for mutual TLS.
func WithTLS(cfg TLSConfig) Option {
	return func(o *options) {
		o.tls = &cfg
	}
}

// WithResolver replaces DID resolution entirely.
func WithResolver(resolver resolution.Resolver) Option {
	return func(o *options) {
		o.resolver = resolver
	}
}

// WithLocalResolutionMethods sets the DID methods resolved in process.
func WithLocalResolutionMethods(methods ...string) Option {
	return func(o *options) {
		o.resolutionMethods = methods
	}
}

// WithUniversalResolver falls back to a universal resolver for methods not resolved in process.
func WithUniversalResolver(url string) Option {
	return func(o *options) {
		o.universalResolverURL = url
	}
}

// WithResolutionCache keeps resolved DID documents for ttl. Zero disables caching.
func WithResolutionCache(ttl time.Duration) Option {
	return func(o *options) {
		o.resolutionCacheTTL = ttl
	}
}

// WithTrustPolicy overrides the policy derived from the trusted DIDs given at construction.
func WithTrustPolicy(policy trust.Policy) Option {
	return func(o *options) {
		o.policy = policy
	}
}

// WithHolderKey sets the key used for key binding and for signing presentations and direct_post.jwt responses.
func WithHolderKey(key *keyaccess.JWKKeyAccess) Option {
	return func(o *options) {
		o.holderKey = key
	}
}

func (o *options) httpClient() (*http.Client, error) {
	if o.client != nil {
		return o.client, nil
	}
	// the process may have wrapped the default transport (proxies, instrumentation, mocks)
	base := http.DefaultTransport
	if transport, ok := base.(*http.Transport); ok {
		base = transport.Clone()
	}
	if o.tls != nil {
		tlsConfig, err := loadClientTLSConfig(*o.tls)
		if err != nil {
			return nil, err
		}
		transport, ok := base.(*http.Transport)
		if !ok {
			transport = &http.Transport{Proxy: http.ProxyFromEnvironment}
		}
		transport.TLSClientConfig = tlsConfig
		base = transport
	}
	timeout := o.timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &http.Client{
		Transport: otelhttp.NewTransport(base),
		Timeout:   timeout,
	}, nil
}

func loadClientTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.CAFile != "" {
		caPEM, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, errors.Wrapf(err, "reading CA file %s", cfg.CAFile)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, errors.Errorf("no certificates found in CA file %s", cfg.CAFile)
		}
		tlsConfig.RootCAs = pool
	}
	if cfg.CertFile != "" || cfg.KeyFile != "" {
		if cfg.CertFile == "" || cfg.KeyFile == "" {
			return nil, errors.New("client certificate and key must be configured together")
		}
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, errors.Wrap(err, "loading client certificate")
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}
