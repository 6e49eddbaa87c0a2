package model

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/Brownie44l1/snaplabel/internal/metrics"
)

const driveDownloadURL = "https://drive.google.com/uc?export=download&id="

// LoadFunc deserializes the artifact at path.
type LoadFunc func(path string) (Backend, error)

// ProvisionerOptions configures a Provisioner. Zero values are usable.
type ProvisionerOptions struct {
	HTTPClient *http.Client
	Logger     zerolog.Logger
	UserAgent  string
}

// Provisioner makes sure the classifier artifact exists on local disk and
// loads it at most once.
type Provisioner struct {
	remoteID  string
	localPath string
	load      LoadFunc
	client    *http.Client
	userAgent string
	log       zerolog.Logger

	once      sync.Once
	backend   Backend
	err       error
	downloads atomic.Int64
}

func NewProvisioner(remoteID, localPath string, load LoadFunc, opts ProvisionerOptions) *Provisioner {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "snaplabel/1.0"
	}
	return &Provisioner{
		remoteID:  remoteID,
		localPath: localPath,
		load:      load,
		client:    opts.HTTPClient,
		userAgent: opts.UserAgent,
		log:       opts.Logger,
	}
}

// Ensure downloads the artifact if it is missing and returns the loaded
// backend. The first call does the work; later calls return its outcome,
// including its error.
func (p *Provisioner) Ensure(ctx context.Context) (Backend, error) {
	p.once.Do(func() {
		p.backend, p.err = p.provision(ctx)
	})
	return p.backend, p.err
}

// Downloads reports how many times the artifact was fetched.
func (p *Provisioner) Downloads() int64 {
	return p.downloads.Load()
}

func (p *Provisioner) provision(ctx context.Context) (Backend, error) {
	_, err := os.Stat(p.localPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := p.download(ctx); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrDeserialization, err)
	default:
		p.log.Info().Str("path", p.localPath).Msg("using cached model artifact")
	}

	backend, err := p.load(p.localPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDeserialization, p.localPath, err)
	}
	return backend, nil
}

func (p *Provisioner) download(ctx context.Context) error {
	src := RemoteURL(p.remoteID)
	dir := filepath.Dir(p.localPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrDownload, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(p.localPath)+".*.part")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDownload, err)
	}
	defer os.Remove(tmp.Name())

	p.downloads.Add(1)
	metrics.ModelDownloads.Inc()
	p.log.Info().Str("url", src).Str("path", p.localPath).Msg("downloading model artifact")

	n, err := p.fetch(ctx, src, tmp, true)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("%w: %w", ErrDownload, cerr)
	}
	if err != nil {
		return err
	}

	if err := os.Rename(tmp.Name(), p.localPath); err != nil {
		return fmt.Errorf("%w: %w", ErrDownload, err)
	}
	p.log.Info().Int64("bytes", n).Str("path", p.localPath).Msg("model artifact downloaded")
	return nil
}

func (p *Provisioner) fetch(ctx context.Context, src string, w io.Writer, followConfirm bool) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDownload, err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDownload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: %s returned %s", ErrDownload, src, resp.Status)
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		page, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		next, ok := confirmURL(page)
		if !followConfirm || !ok {
			return 0, fmt.Errorf("%w: %s returned an HTML page instead of the artifact", ErrDownload, src)
		}
		p.log.Debug().Str("url", next).Msg("following download confirmation")
		return p.fetch(ctx, next, w, false)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("%w: %w", ErrDownload, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: %s returned an empty body", ErrDownload, src)
	}
	return n, nil
}

// RemoteURL maps a configured remote id to a download URL. http(s) URLs are
// used as given; anything else is a Google Drive file id.
func RemoteURL(remoteID string) string {
	if strings.HasPrefix(remoteID, "http://") || strings.HasPrefix(remoteID, "https://") {
		return remoteID
	}
	return driveDownloadURL + url.QueryEscape(remoteID)
}

var (
	driveFormAction  = regexp.MustCompile(`<form[^>]*id="download-form"[^>]*action="([^"]+)"`)
	driveHiddenInput = regexp.MustCompile(`<input[^>]*type="hidden"[^>]*name="([^"]+)"[^>]*value="([^"]*)"`)
)

// confirmURL extracts the target of Google Drive's "cannot scan for viruses"
// interstitial, which large files answer with instead of their content.
func confirmURL(page []byte) (string, bool) {
	m := driveFormAction.FindSubmatch(page)
	if m == nil {
		return "", false
	}
	target, err := url.Parse(html.UnescapeString(string(m[1])))
	if err != nil {
		return "", false
	}

	query := target.Query()
	for _, input := range driveHiddenInput.FindAllSubmatch(page, -1) {
		query.Set(html.UnescapeString(string(input[1])), html.UnescapeString(string(input[2])))
	}
	if query.Get("confirm") == "" {
		return "", false
	}
	target.RawQuery = query.Encode()
	return target.String(), true
}
