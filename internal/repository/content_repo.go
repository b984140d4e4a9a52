package repository

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Cheertaboi/qris-discount-service/internal/models"
)

// ContentConfig points at a file in a version-controlled content API
// (GitHub contents API compatible).
type ContentConfig struct {
	// BaseURL is the repository endpoint, e.g. https://api.github.com/repos/acme/promo-state.
	BaseURL string
	Token   string
	Path    string
	Branch  string
}

// ContentStore keeps the document as a file; the blob sha is the version
// token and the API rejects writes carrying a stale sha.
type ContentStore struct {
	cfg  ContentConfig
	http *http.Client
	now  func() time.Time
}

// NewContentStore returns a ContentStore. A nil client gets a 10s timeout.
func NewContentStore(cfg ContentConfig, client *http.Client) (*ContentStore, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, Error.New("content base url required")
	}
	if strings.TrimSpace(cfg.Path) == "" {
		cfg.Path = "promo.json"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.Path = strings.TrimLeft(cfg.Path, "/")
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &ContentStore{cfg: cfg, http: client, now: time.Now}, nil
}

type contentFile struct {
	SHA      string `json:"sha"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type contentWrite struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch,omitempty"`
}

type contentWriteResult struct {
	Content contentFile `json:"content"`
}

func (r *ContentStore) fileURL(withRef bool) string {
	u := r.cfg.BaseURL + "/contents/" + r.cfg.Path
	if withRef && r.cfg.Branch != "" {
		u += "?ref=" + url.QueryEscape(r.cfg.Branch)
	}
	return u
}

// Load implements Store.
func (r *ContentStore) Load(ctx context.Context) (_ *models.Document, _ Version, err error) {
	defer mon.Task()(&ctx)(&err)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.fileURL(true), nil)
	if err != nil {
		return nil, "", Error.Wrap(err)
	}
	r.headers(req)

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, "", Error.Wrap(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return models.NewDocument(), "", nil
	}
	if resp.StatusCode >= 300 {
		return nil, "", Error.New("load %s: status=%d", r.cfg.Path, resp.StatusCode)
	}

	var file contentFile
	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
		return nil, "", Error.Wrap(err)
	}

	var raw []byte
	if file.Encoding == "base64" && file.Content != "" {
		raw, err = base64.StdEncoding.DecodeString(strings.ReplaceAll(file.Content, "\n", ""))
		if err != nil {
			return nil, "", Error.New("decode %s: %v", r.cfg.Path, err)
		}
	} else {
		// files over 1MB come back without inline content
		raw, err = r.loadRaw(ctx)
		if err != nil {
			return nil, "", err
		}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, "", Error.New("%s at sha %q has no content", r.cfg.Path, file.SHA)
	}
	doc, err := models.DecodeDocument(raw)
	if err != nil {
		return nil, "", Error.Wrap(err)
	}
	return doc, Version(file.SHA), nil
}

func (r *ContentStore) loadRaw(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.fileURL(true), nil)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	r.headers(req)
	req.Header.Set("Accept", "application/vnd.github.raw")

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return nil, Error.New("load raw %s: status=%d", r.cfg.Path, resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return raw, nil
}

// Save implements Store.
func (r *ContentStore) Save(ctx context.Context, doc *models.Document, version Version) (_ Version, err error) {
	defer mon.Task()(&ctx)(&err)

	body, err := doc.Encode()
	if err != nil {
		return "", Error.Wrap(err)
	}
	payload, err := json.Marshal(contentWrite{
		Message: fmt.Sprintf("promo: update %s", r.now().UTC().Format(time.RFC3339)),
		Content: base64.StdEncoding.EncodeToString(body),
		SHA:     string(version),
		Branch:  r.cfg.Branch,
	})
	if err != nil {
		return "", Error.Wrap(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, r.fileURL(false), bytes.NewReader(payload))
	if err != nil {
		return "", Error.Wrap(err)
	}
	r.headers(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return "", Error.Wrap(err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusConflict, resp.StatusCode == http.StatusUnprocessableEntity:
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", models.ErrConflict.New("%s changed since sha %q", r.cfg.Path, version)
	case resp.StatusCode >= 300:
		return "", Error.New("save %s: status=%d", r.cfg.Path, resp.StatusCode)
	}

	var result contentWriteResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", Error.Wrap(err)
	}
	return Version(result.Content.SHA), nil
}

func (r *ContentStore) headers(req *http.Request) {
	req.Header.Set("Accept", "application/vnd.github+json")
	if r.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.Token)
	}
}
