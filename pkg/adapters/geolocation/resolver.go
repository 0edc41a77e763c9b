package geolocation

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/oschwald/geoip2-golang"

	"github.com/wadjakorntonsri/geo-shortener/pkg/core/domain"
	"github.com/wadjakorntonsri/geo-shortener/pkg/ports"
)

const lang = "en"

// GeoLiteResolver resolves IP addresses using a local GeoLite2-City database.
// The database is opened on first use and reopened after Reload.
//
// This product includes GeoLite2 data created by MaxMind, available from
// <a href="https://www.maxmind.com">https://www.maxmind.com</a>.
type GeoLiteResolver struct {
	dbPath string

	mu     sync.RWMutex
	reader *geoip2.Reader
}

func NewGeoLiteResolver(dbPath string) *GeoLiteResolver {
	return &GeoLiteResolver{dbPath: dbPath}
}

var _ ports.IPLocationResolver = (*GeoLiteResolver)(nil)

func (r *GeoLiteResolver) ResolveIPLocation(_ context.Context, ip string) (domain.Location, error) {
	ipAddr := net.ParseIP(ip)
	if ipAddr == nil {
		return domain.Location{}, fmt.Errorf("%w: %q", domain.ErrInvalidAddress, ip)
	}

	if err := r.ensureOpen(); err != nil {
		return domain.Location{}, fmt.Errorf("%w: %v", domain.ErrResolveFailed, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.reader == nil {
		return domain.Location{}, fmt.Errorf("%w: database was closed", domain.ErrResolveFailed)
	}

	record, err := r.reader.City(ipAddr)
	if err != nil {
		return domain.Location{}, fmt.Errorf("%w: %v", domain.ErrResolveFailed, err)
	}

	return toLocation(record), nil
}

// Reload drops the current reader so the next lookup opens the file again.
// It is meant to be called after the database file was replaced.
func (r *GeoLiteResolver) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.reader == nil {
		return nil
	}

	err := r.reader.Close()
	r.reader = nil

	return err
}

func (r *GeoLiteResolver) Close() error {
	return r.Reload()
}

func (r *GeoLiteResolver) ensureOpen() error {
	r.mu.RLock()
	opened := r.reader != nil
	r.mu.RUnlock()

	if opened {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.reader != nil {
		return nil
	}

	reader, err := geoip2.Open(r.dbPath)
	if err != nil {
		return err
	}
	r.reader = reader

	return nil
}

// toLocation maps a lookup result. Addresses missing from the database produce
// a zero record, which ends up as the empty location.
func toLocation(record *geoip2.City) domain.Location {
	loc := domain.Location{
		CountryCode: record.Country.IsoCode,
		CountryName: record.Country.Names[lang],
		CityName:    record.City.Names[lang],
		Latitude:    record.Location.Latitude,
		Longitude:   record.Location.Longitude,
		Timezone:    record.Location.TimeZone,
	}
	if len(record.Subdivisions) > 0 {
		loc.RegionName = record.Subdivisions[0].Names[lang]
	}

	return loc
}
