package remote

import (
	"bytes"
	"encoding/json"
	"filemirror/internal/logger"
	"filemirror/internal/util"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// cachedToken is the on-disk form. Key names the credentials the token was
// issued for, so a cache left behind by other credentials is never sent.
type cachedToken struct {
	Key   string        `json:"key"`
	Token *oauth2.Token `json:"token"`
}

// cachedTokenSource keeps the last token on disk so a restart does not
// hit the token endpoint while the previous token is still valid.
type cachedTokenSource struct {
	mu    sync.Mutex
	path  string
	key   string
	base  oauth2.TokenSource
	token *oauth2.Token
}

type tokenFunc func() (*oauth2.Token, error)

func (f tokenFunc) Token() (*oauth2.Token, error) {
	return f()
}

func credentialsKey(clientID, tokenURL string) string {
	return clientID + "@" + tokenURL
}

func newCachedTokenSource(path, key string, base oauth2.TokenSource) *cachedTokenSource {
	s := &cachedTokenSource{path: path, key: key, base: base}

	if path == "" {
		return s
	}

	cached, err := loadToken(path)
	switch {
	case err == nil && cached.Key != key:
		logger.Log.Info("token cache belongs to other credentials, ignoring it",
			zap.String("path", path))
	case err == nil && cached.Token != nil && cached.Token.Expiry.IsZero():
		// a token without expiry would be reused forever
		logger.Log.Info("token cache has no expiry, ignoring it",
			zap.String("path", path))
	case err == nil:
		s.token = cached.Token
	case !os.IsNotExist(err):
		logger.Log.Warn("ignoring unreadable token cache",
			zap.String("path", path),
			zap.Error(err))
	}

	return s
}

func (s *cachedTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token.Valid() {
		return s.token, nil
	}

	tok, err := s.base.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch token: %w", err)
	}
	s.token = tok

	if s.path != "" {
		if err := saveToken(s.path, cachedToken{Key: s.key, Token: tok}); err != nil {
			logger.Log.Warn("failed to cache token", zap.Error(err))
		}
	}

	return tok, nil
}

// Invalidate forgets the current token after the API rejected it. The
// next request fetches a new one.
func (s *cachedTokenSource) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = nil
	if s.path == "" {
		return
	}

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		logger.Log.Warn("failed to remove token cache",
			zap.String("path", s.path),
			zap.Error(err))
	}
}

func saveToken(path string, cached cachedToken) error {
	b, err := json.Marshal(cached)
	if err != nil {
		return err
	}

	if err := util.AtomicWrite(path, bytes.NewReader(b), 0600); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	return nil
}

func loadToken(path string) (cachedToken, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return cachedToken{}, err
	}

	var cached cachedToken
	if err := json.Unmarshal(b, &cached); err != nil {
		return cachedToken{}, fmt.Errorf("failed to parse token: %w", err)
	}

	return cached, nil
}
