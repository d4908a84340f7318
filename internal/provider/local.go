package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LocalProvider stores objects on the local filesystem and mints
// HMAC-signed, expiring URLs that the vault serves itself under /blob/.
// It is the development and test backend.
type LocalProvider struct {
	root    string
	baseURL string
	secret  []byte
}

// NewLocalProvider creates a filesystem-backed provider rooted at root.
// baseURL is the externally reachable prefix for signed URLs, e.g.
// "http://localhost:8400".
func NewLocalProvider(root, baseURL string, secret []byte) *LocalProvider {
	return &LocalProvider{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
	}
}

func (p *LocalProvider) Name() string { return "local" }

// sign computes the signature over method, key and expiry.
func (p *LocalProvider) sign(method, key string, expires int64) string {
	mac := hmac.New(sha256.New, p.secret)
	fmt.Fprintf(mac, "%s\n%s\n%d", method, key, expires)
	return hex.EncodeToString(mac.Sum(nil))
}

func (p *LocalProvider) signedURL(method, key string, ttl time.Duration) string {
	expires := time.Now().Add(ttl).Unix()
	q := url.Values{}
	q.Set("exp", strconv.FormatInt(expires, 10))
	q.Set("sig", p.sign(method, key, expires))
	return p.baseURL + "/blob/" + key + "?" + q.Encode()
}

func (p *LocalProvider) GenerateUploadURL(ctx context.Context, key, contentType string, ttl time.Duration, metadata map[string]string) (string, error) {
	return p.signedURL(http.MethodPut, key, ttl), nil
}

func (p *LocalProvider) GenerateDownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return p.signedURL(http.MethodGet, key, ttl), nil
}

// objectPath maps a key onto the filesystem, rejecting traversal outside
// the root.
func (p *LocalProvider) objectPath(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	full := filepath.Join(p.root, clean)
	if !strings.HasPrefix(full, filepath.Clean(p.root)+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid object key: %s", key)
	}
	return full, nil
}

func (p *LocalProvider) Move(ctx context.Context, srcKey, dstKey string) error {
	src, err := p.objectPath(srcKey)
	if err != nil {
		return err
	}
	dst, err := p.objectPath(dstKey)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("creating object directory: %w", err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("moving object: %w", err)
	}
	return nil
}

func (p *LocalProvider) Delete(ctx context.Context, key string) error {
	full, err := p.objectPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting object: %w", err)
	}
	return nil
}

// Handler serves GET and PUT against signed /blob/ URLs. Mounted by the
// API server when the local provider is configured.
func (p *LocalProvider) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/blob/")
		if key == "" || key == r.URL.Path {
			http.Error(w, "missing object key", http.StatusBadRequest)
			return
		}

		expStr := r.URL.Query().Get("exp")
		sig := r.URL.Query().Get("sig")
		expires, err := strconv.ParseInt(expStr, 10, 64)
		if err != nil || sig == "" {
			http.Error(w, "missing signature", http.StatusForbidden)
			return
		}
		if time.Now().Unix() > expires {
			http.Error(w, "url expired", http.StatusForbidden)
			return
		}
		want := p.sign(r.Method, key, expires)
		if !hmac.Equal([]byte(want), []byte(sig)) {
			http.Error(w, "invalid signature", http.StatusForbidden)
			return
		}

		full, err := p.objectPath(key)
		if err != nil {
			http.Error(w, "invalid object key", http.StatusBadRequest)
			return
		}

		switch r.Method {
		case http.MethodGet:
			f, err := os.Open(full)
			if err != nil {
				http.Error(w, "object not found", http.StatusNotFound)
				return
			}
			defer f.Close()
			io.Copy(w, f) //nolint:errcheck
		case http.MethodPut:
			if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
				http.Error(w, "storage error", http.StatusInternalServerError)
				return
			}
			f, err := os.Create(full)
			if err != nil {
				http.Error(w, "storage error", http.StatusInternalServerError)
				return
			}
			defer f.Close()
			if _, err := io.Copy(f, r.Body); err != nil {
				http.Error(w, "storage error", http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}
