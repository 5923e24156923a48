package credential

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
)

// ErrMissing indicates that no bearer credential could be resolved.
var ErrMissing = errors.New("credential: no bearer token available")

// Provider resolves the bearer token used against the data source. The token
// is treated as opaque; rotation happens by restarting or by re-reading the
// backing file.
type Provider interface {
	Token(ctx context.Context) (string, error)
}

// Static always returns the same token.
type Static string

func (s Static) Token(ctx context.Context) (string, error) {
	token := strings.TrimSpace(string(s))
	if token == "" {
		return "", ErrMissing
	}
	return token, nil
}

// File reads the token from a file on every call so an external rotation
// (e.g. a secret-manager sidecar rewriting the file) is picked up without a
// restart. The last good token is kept as a fallback for transient read errors.
type File struct {
	Path string

	mu   sync.Mutex
	last string
}

func (f *File) Token(ctx context.Context) (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.last != "" {
			return f.last, nil
		}
		return "", errors.Join(ErrMissing, err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", ErrMissing
	}
	f.mu.Lock()
	f.last = token
	f.mu.Unlock()
	return token, nil
}

// Resolve picks the provider for the configured credential inputs: an inline
// token wins over a token file.
func Resolve(token, tokenFile string) (Provider, error) {
	if strings.TrimSpace(token) != "" {
		return Static(token), nil
	}
	if strings.TrimSpace(tokenFile) != "" {
		return &File{Path: strings.TrimSpace(tokenFile)}, nil
	}
	return nil, ErrMissing
}
