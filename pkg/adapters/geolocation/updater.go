package geolocation

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alexflint/go-filemutex"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/oschwald/maxminddb-golang"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/wadjakorntonsri/geo-shortener/pkg/config"
	"github.com/wadjakorntonsri/geo-shortener/pkg/core/domain"
	"github.com/wadjakorntonsri/geo-shortener/pkg/ports"
)

const licenseKeyPlaceholder = "{license_key}"

var (
	ErrMissingLicenseKey = errors.New("geolite2 license key not configured")
	ErrDownloadFailed    = errors.New("geolite2 download failed")
	ErrNoDatabaseInFile  = errors.New("no .mmdb file found in downloaded archive")
)

// GeoLiteUpdater keeps the GeoLite2 database file on disk fresh. Concurrent
// callers share one in-flight update, and a lock file serializes downloads
// between processes using the same path.
type GeoLiteUpdater struct {
	dbPath      string
	downloadURL string
	licenseKey  string
	maxAge      time.Duration

	client    *retryablehttp.Client
	group     singleflight.Group
	onUpdate  func() error
	buildTime func(path string) (time.Time, error)
	now       func() time.Time
	logger    zerolog.Logger
}

type UpdaterOption func(*GeoLiteUpdater)

// WithReloadHook registers a function called after a new file was written,
// typically GeoLiteResolver.Reload.
func WithReloadHook(fn func() error) UpdaterOption {
	return func(u *GeoLiteUpdater) {
		u.onUpdate = fn
	}
}

// WithHTTPClient overrides the download client.
func WithHTTPClient(c *retryablehttp.Client) UpdaterOption {
	return func(u *GeoLiteUpdater) {
		u.client = c
	}
}

func NewGeoLiteUpdater(cfg config.GeoLiteConfig, logger zerolog.Logger, opts ...UpdaterOption) *GeoLiteUpdater {
	client := retryablehttp.NewClient()
	client.HTTPClient.Timeout = cfg.DownloadTimeout
	client.RetryMax = 2
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.Logger = nil // to avoid debug logs

	u := &GeoLiteUpdater{
		dbPath:      cfg.DBPath,
		downloadURL: cfg.DownloadURL,
		licenseKey:  cfg.LicenseKey,
		maxAge:      cfg.MaxAge,
		client:      client,
		onUpdate:    func() error { return nil },
		buildTime:   mmdbBuildTime,
		now:         time.Now,
		logger:      logger,
	}

	for _, opt := range opts {
		opt(u)
	}

	return u
}

var _ ports.GeolocationDBUpdater = (*GeoLiteUpdater)(nil)

// CheckForDatabaseUpdate returns nil when the database is fresh or was
// updated. Otherwise it returns a *domain.UpdateFailedError telling whether
// a readable older file is still there.
func (u *GeoLiteUpdater) CheckForDatabaseUpdate(ctx context.Context) error {
	if u.isFresh() {
		return nil
	}

	// shared by every waiting caller, so one of them giving up must not cancel it
	flightCtx := context.WithoutCancel(ctx)
	_, err, _ := u.group.Do(u.dbPath, func() (any, error) {
		return nil, u.update(flightCtx)
	})

	return err
}

func (u *GeoLiteUpdater) isFresh() bool {
	built, err := u.buildTime(u.dbPath)
	if err != nil {
		return false
	}

	return u.now().Sub(built) < u.maxAge
}

func (u *GeoLiteUpdater) update(ctx context.Context) error {
	// an unreadable file counts as no copy
	_, err := u.buildTime(u.dbPath)
	oldCopyExists := err == nil

	if err = os.MkdirAll(filepath.Dir(u.dbPath), os.ModePerm); err != nil {
		return domain.NewUpdateFailedError(oldCopyExists, fmt.Errorf("creating directory for storing db: %w", err))
	}

	lock, err := filemutex.New(u.dbPath + ".lock")
	if err != nil {
		return domain.NewUpdateFailedError(oldCopyExists, fmt.Errorf("creating lock file: %w", err))
	}
	defer lock.Close()

	if err := lock.Lock(); err != nil {
		return domain.NewUpdateFailedError(oldCopyExists, fmt.Errorf("locking db file: %w", err))
	}
	defer func() { _ = lock.Unlock() }()

	// another process may have finished the download while we waited
	if u.isFresh() {
		return u.onUpdate()
	}

	u.logger.Info().Str("path", u.dbPath).Bool("old_copy", oldCopyExists).Msg("downloading GeoLite2 database")

	if err := u.download(ctx); err != nil {
		return domain.NewUpdateFailedError(oldCopyExists, err)
	}

	u.logger.Info().Str("path", u.dbPath).Msg("GeoLite2 database updated")

	if err := u.onUpdate(); err != nil {
		u.logger.Warn().Err(err).Msg("could not reload GeoLite2 database")
	}

	return nil
}

func (u *GeoLiteUpdater) download(ctx context.Context) error {
	url := u.downloadURL
	if strings.Contains(url, licenseKeyPlaceholder) {
		if u.licenseKey == "" {
			return ErrMissingLicenseKey
		}
		url = strings.ReplaceAll(url, licenseKeyPlaceholder, u.licenseKey)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %d", ErrDownloadFailed, resp.StatusCode)
	}

	return u.extract(resp.Body)
}

// extract copies the first .mmdb entry of a tar.gz stream next to the target
// path and renames it into place.
func (u *GeoLiteUpdater) extract(r io.Reader) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("%w: reading gzip: %v", ErrDownloadFailed, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return ErrNoDatabaseInFile
		}
		if err != nil {
			return fmt.Errorf("%w: reading tar: %v", ErrDownloadFailed, err)
		}

		if hdr.Typeflag != tar.TypeReg || filepath.Ext(hdr.Name) != ".mmdb" {
			continue
		}

		return u.replaceFile(tr)
	}
}

func (u *GeoLiteUpdater) replaceFile(r io.Reader) error {
	f, err := os.CreateTemp(filepath.Dir(u.dbPath), "geolite-*.mmdb")
	if err != nil {
		return fmt.Errorf("creating a temporary file: %w", err)
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(f.Name())
	}()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("%w: writing database: %v", ErrDownloadFailed, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temporary file: %w", err)
	}

	if err := os.Rename(f.Name(), u.dbPath); err != nil {
		return fmt.Errorf("moving database into place: %w", err)
	}

	return nil
}

// mmdbBuildTime reads the build date stored in the database metadata. A
// missing or corrupt file returns an error and is treated as stale.
func mmdbBuildTime(path string) (time.Time, error) {
	reader, err := maxminddb.Open(path)
	if err != nil {
		return time.Time{}, err
	}
	defer reader.Close()

	return time.Unix(int64(reader.Metadata.BuildEpoch), 0), nil
}
