// Package auth provides job-board bearer credentials per user, refreshing
// OAuth2 tokens transparently and persisting refreshed tokens.
package auth

import (
	"context"
	"strconv"
	"sync"

	"github.com/cockroachdb/errors"
	"golang.org/x/oauth2"

	"autoapply/internal/model"
	"autoapply/internal/storage"
)

// ErrAuthorizationRequired means the user must authorize the app again.
// It aborts that user's run only.
var ErrAuthorizationRequired = errors.New("authorization required")

// Endpoint is the hh.ru OAuth2 endpoint.
var Endpoint = oauth2.Endpoint{
	AuthURL:  "https://hh.ru/oauth/authorize",
	TokenURL: "https://hh.ru/oauth/token",
}

// TokenStore persists tokens per user.
type TokenStore interface {
	GetToken(ctx context.Context, userID int64) (*model.Token, error)
	SaveToken(ctx context.Context, t *model.Token) error
}

// Provider hands out valid access tokens.
type Provider struct {
	conf  *oauth2.Config
	store TokenStore

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewProvider creates a Provider.
func NewProvider(conf *oauth2.Config, store TokenStore) *Provider {
	return &Provider{conf: conf, store: store, locks: make(map[int64]*sync.Mutex)}
}

// Token returns a valid access token for the user, refreshing it when
// expired. Refreshes for one user are serialized because the board rotates
// refresh tokens.
func (p *Provider) Token(ctx context.Context, userID int64) (string, error) {
	l := p.userLock(userID)
	l.Lock()
	defer l.Unlock()

	stored, err := p.store.GetToken(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", errors.Mark(errors.Newf("no token for user %d", userID), ErrAuthorizationRequired)
		}
		return "", errors.Wrap(err, "load token")
	}

	current := &oauth2.Token{
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		TokenType:    stored.TokenType,
		Expiry:       stored.Expiry,
	}
	if current.Valid() {
		return current.AccessToken, nil
	}
	if current.RefreshToken == "" {
		return "", errors.Mark(errors.Newf("token for user %d expired without refresh token", userID), ErrAuthorizationRequired)
	}

	fresh, err := p.conf.TokenSource(ctx, current).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && (re.ErrorCode == "invalid_grant" || re.Response != nil && re.Response.StatusCode < 500) {
			return "", errors.Mark(errors.Wrapf(err, "refresh token for user %d", userID), ErrAuthorizationRequired)
		}
		return "", errors.Wrapf(err, "refresh token for user %d", userID)
	}

	if err := p.save(ctx, userID, fresh); err != nil {
		return "", err
	}
	return fresh.AccessToken, nil
}

// AuthCodeURL returns the URL a user opens to grant access. The user ID is the state.
func (p *Provider) AuthCodeURL(userID int64) string {
	return p.conf.AuthCodeURL(strconv.FormatInt(userID, 10))
}

// Exchange trades an authorization code for a token and stores it.
func (p *Provider) Exchange(ctx context.Context, userID int64, code string) error {
	tok, err := p.conf.Exchange(ctx, code)
	if err != nil {
		return errors.Wrap(err, "exchange code")
	}
	return p.save(ctx, userID, tok)
}

func (p *Provider) save(ctx context.Context, userID int64, tok *oauth2.Token) error {
	err := p.store.SaveToken(ctx, &model.Token{
		UserID:       userID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		Expiry:       tok.Expiry,
	})
	if err != nil {
		return errors.Wrap(err, "save token")
	}
	return nil
}

func (p *Provider) userLock(userID int64) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		p.locks[userID] = l
	}
	return l
}
