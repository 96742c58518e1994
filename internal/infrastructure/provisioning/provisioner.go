// Package provisioning makes sure the language server binary for the host is
// cached locally, downloading it from the versioned release location if needed.
package provisioning

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/singleflight"

	"gbnf.dev/client/internal/core/domain"
	"gbnf.dev/client/internal/core/ports"
)

// executableMode allows owner, group and other to execute the binary
const executableMode os.FileMode = 0755

// Options configures a Provisioner
type Options struct {
	// ReleaseBaseURL is the prefix before "/v{version}/{canonical name}",
	// e.g. https://github.com/<owner>/<repo>/releases/download
	ReleaseBaseURL string
	Versions       ports.VersionSource
	HTTPClient     *http.Client
	Timeout        time.Duration
	UserAgent      string
	Sink           ports.OutputSink
	Notifier       ports.Notifier
}

// Provisioner downloads missing binaries into the shared cache directory
type Provisioner struct {
	baseURL   string
	versions  ports.VersionSource
	client    *http.Client
	userAgent string
	sink      ports.OutputSink
	notifier  ports.Notifier
	group     singleflight.Group
}

// NewProvisioner creates a provisioner
func NewProvisioner(opts Options) *Provisioner {
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Minute
		}
		client = &http.Client{Timeout: timeout}
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "gbnf-client"
	}

	return &Provisioner{
		baseURL:   strings.TrimRight(opts.ReleaseBaseURL, "/"),
		versions:  opts.Versions,
		client:    client,
		userAgent: userAgent,
		sink:      opts.Sink,
		notifier:  opts.Notifier,
	}
}

// DownloadURL returns the release artifact location for version and name
func (p *Provisioner) DownloadURL(version domain.ReleaseVersion, canonicalName string) string {
	return fmt.Sprintf("%s/%s/%s", p.baseURL, version.Tag(), canonicalName)
}

// Ensure guarantees that binary.Path exists and, off Windows, is executable.
// An existing file is returned without network access. Concurrent calls for
// one path share a single download; other processes are kept out by a lock
// file next to the binary.
func (p *Provisioner) Ensure(ctx context.Context, binary domain.BinaryDescriptor) (domain.BinaryDescriptor, error) {
	if ok, err := p.present(binary); err != nil || ok {
		if err != nil {
			return binary, err
		}
		binary.Executable = true
		return binary, nil
	}

	_, err, _ := p.group.Do(binary.Path, func() (interface{}, error) {
		return nil, p.provision(ctx, binary)
	})
	if err != nil {
		return binary, err
	}

	binary.Executable = true
	return binary, nil
}

// present reports whether the binary is already cached, repairing missing
// execute bits locally.
func (p *Provisioner) present(binary domain.BinaryDescriptor) (bool, error) {
	info, err := os.Stat(binary.Path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, &domain.MissingBinaryError{Path: binary.Path, Err: err}
	}
	if info.IsDir() {
		return false, &domain.MissingBinaryError{Path: binary.Path, Err: fmt.Errorf("path is a directory")}
	}

	if !binary.Platform.IsWindows() && info.Mode().Perm()&0111 != 0111 {
		if err := os.Chmod(binary.Path, info.Mode().Perm()|executableMode); err != nil {
			return false, &domain.MissingBinaryError{Path: binary.Path, Err: fmt.Errorf("failed to make binary executable: %w", err)}
		}
	}
	return true, nil
}

func (p *Provisioner) provision(ctx context.Context, binary domain.BinaryDescriptor) error {
	version, err := p.versions.ReleaseVersion()
	if err != nil {
		return &domain.MissingBinaryError{Path: binary.Path, Err: fmt.Errorf("release version unavailable: %w", err)}
	}

	dir := filepath.Dir(binary.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &domain.DownloadError{URL: p.DownloadURL(version, binary.CanonicalName), Err: fmt.Errorf("failed to create directory: %w", err)}
	}

	lock := flock.New(binary.Path + ".lock")
	locked, err := lock.TryLockContext(ctx, 250*time.Millisecond)
	if err != nil || !locked {
		if err == nil {
			err = errors.New("lock not acquired")
		}
		return &domain.DownloadError{URL: p.DownloadURL(version, binary.CanonicalName), Err: fmt.Errorf("failed to lock %s: %w", lock.Path(), err)}
	}
	defer lock.Unlock()

	// Another process may have finished the download while we waited.
	if ok, err := p.present(binary); err != nil || ok {
		return err
	}

	return p.download(ctx, version, binary)
}

func (p *Provisioner) download(ctx context.Context, version domain.ReleaseVersion, binary domain.BinaryDescriptor) error {
	url := p.DownloadURL(version, binary.CanonicalName)
	p.log("Downloading %s %s from %s", binary.CanonicalName, version.Tag(), url)
	p.notify(fmt.Sprintf("Downloading %s %s...", binary.CanonicalName, version.Tag()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &domain.DownloadError{URL: url, Err: fmt.Errorf("failed to create download request: %w", err)}
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return &domain.DownloadError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &domain.DownloadError{URL: url, StatusCode: resp.StatusCode}
	}

	if err := p.install(resp.Body, binary); err != nil {
		return &domain.DownloadError{URL: url, StatusCode: resp.StatusCode, Err: err}
	}

	p.log("Downloaded %s to %s", binary.CanonicalName, binary.Path)
	p.notify(fmt.Sprintf("Downloaded %s %s", binary.CanonicalName, version.Tag()))
	return nil
}

// install writes body to a temporary file next to the target and renames it
// into place only once it is complete and executable.
func (p *Provisioner) install(body io.Reader, binary domain.BinaryDescriptor) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(binary.Path), "."+filepath.Base(binary.Path)+".*.part")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, body); err != nil {
		return fmt.Errorf("failed to write binary: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to write binary: %w", err)
	}

	if !binary.Platform.IsWindows() {
		if err = os.Chmod(tmp.Name(), executableMode); err != nil {
			return fmt.Errorf("failed to make binary executable: %w", err)
		}
	}

	if err = os.Rename(tmp.Name(), binary.Path); err != nil {
		return fmt.Errorf("failed to move binary into place: %w", err)
	}
	return nil
}

func (p *Provisioner) log(format string, args ...interface{}) {
	if p.sink != nil {
		p.sink.Appendf(format, args...)
	}
}

func (p *Provisioner) notify(message string) {
	if p.notifier != nil {
		p.notifier.Info(message)
	}
}
