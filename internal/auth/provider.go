package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/klauern/calmirror/internal/cache"
	"github.com/klauern/calmirror/internal/calendar"
	"github.com/klauern/calmirror/internal/calendar/ics"
	"github.com/klauern/calmirror/internal/config"
	"github.com/klauern/calmirror/internal/logging"
)

// Provider builds calendar sessions from stored credentials. Google
// accounts get an authorized API client; ICS accounts get a read-only feed
// reader.
type Provider struct {
	client     *ClientConfig
	store      *TokenStore
	logger     *slog.Logger
	httpClient *http.Client
	feeds      *cache.Cache
	feedTTL    time.Duration
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ProviderOption {
	return func(p *Provider) { p.logger = logger }
}

// WithHTTPClient sets the base client used for token refresh and ICS
// downloads.
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(p *Provider) { p.httpClient = c }
}

// WithFeedCache caches ICS feeds in c for ttl.
func WithFeedCache(c *cache.Cache, ttl time.Duration) ProviderOption {
	return func(p *Provider) {
		p.feeds = c
		p.feedTTL = ttl
	}
}

// NewProvider returns a Provider. client may be nil when only ICS accounts
// are used.
func NewProvider(client *ClientConfig, store *TokenStore, opts ...ProviderOption) *Provider {
	p := &Provider{client: client, store: store, logger: logging.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Session returns a session for acct.
func (p *Provider) Session(ctx context.Context, acct config.Account) (calendar.Session, error) {
	if acct.IsICS() {
		opts := []ics.Option{ics.WithLogger(p.logger.With(logging.Account(acct.Name)))}
		if p.httpClient != nil {
			opts = append(opts, ics.WithHTTPClient(p.httpClient))
		}
		if p.feeds != nil {
			opts = append(opts, ics.WithCache(p.feeds, p.feedTTL))
		}
		return ics.New(opts...), nil
	}

	if p.client == nil {
		return nil, ErrNoClientConfig
	}
	tok, err := p.store.Load(acct)
	if err != nil {
		return nil, err
	}
	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}
	src := &persistingSource{
		base:   p.client.OAuth2().TokenSource(ctx, tok),
		store:  p.store,
		acct:   acct,
		last:   tok.AccessToken,
		logger: p.logger,
	}
	return calendar.NewGoogle(ctx, oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src)))
}

// persistingSource saves tokens after a refresh.
type persistingSource struct {
	mu     sync.Mutex
	base   oauth2.TokenSource
	store  *TokenStore
	acct   config.Account
	last   string
	logger *slog.Logger
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			s.logger.Warn("token refresh rejected, re-run auth",
				logging.Account(s.acct.Name), slog.String("code", rerr.ErrorCode))
		}
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		if err := s.store.Save(s.acct, tok); err != nil {
			s.logger.Warn("failed to persist refreshed token", logging.Account(s.acct.Name), logging.Err(err))
		} else {
			s.last = tok.AccessToken
			s.logger.Debug("refreshed token saved", logging.Account(s.acct.Name))
		}
	}
	return tok, nil
}
