package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wadjakorntonsri/geo-shortener/pkg/config"
	"github.com/wadjakorntonsri/geo-shortener/pkg/core/domain"
)

type linkServiceMock struct {
	mock.Mock
	recorded chan struct{}
}

func (m *linkServiceMock) Shorten(ctx context.Context, originalURL, title string, tags []string, customCode string) (*domain.Link, error) {
	args := m.Called(ctx, originalURL, title, tags, customCode)
	link, _ := args.Get(0).(*domain.Link)
	return link, args.Error(1)
}

func (m *linkServiceMock) GetOriginalURL(ctx context.Context, code string) (string, error) {
	args := m.Called(ctx, code)
	return args.String(0), args.Error(1)
}

func (m *linkServiceMock) UpdateLink(ctx context.Context, id int64, originalURL, title string, tags []string) (*domain.Link, error) {
	args := m.Called(ctx, id, originalURL, title, tags)
	link, _ := args.Get(0).(*domain.Link)
	return link, args.Error(1)
}

func (m *linkServiceMock) DeleteLink(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *linkServiceMock) ListLinks(ctx context.Context, page, limit int, search string, tag string) ([]domain.Link, int64, error) {
	args := m.Called(ctx, page, limit, search, tag)
	links, _ := args.Get(0).([]domain.Link)
	return links, args.Get(1).(int64), args.Error(2)
}

func (m *linkServiceMock) RecordVisit(ctx context.Context, shortCode, referer, userAgent, ip string) error {
	err := m.Called(ctx, shortCode, referer, userAgent, ip).Error(0)
	if m.recorded != nil {
		m.recorded <- struct{}{}
	}
	return err
}

func (m *linkServiceMock) GetLinkStats(ctx context.Context, id int64) (*domain.LinkStats, error) {
	args := m.Called(ctx, id)
	stats, _ := args.Get(0).(*domain.LinkStats)
	return stats, args.Error(1)
}

func (m *linkServiceMock) ListVisits(ctx context.Context, id int64, page, limit int) ([]domain.Visit, error) {
	args := m.Called(ctx, id, page, limit)
	visits, _ := args.Get(0).([]domain.Visit)
	return visits, args.Error(1)
}

func (m *linkServiceMock) GetDashboard(ctx context.Context, limit int, search, tag, domainFilter string) ([]domain.Link, int64, error) {
	args := m.Called(ctx, limit, search, tag, domainFilter)
	links, _ := args.Get(0).([]domain.Link)
	return links, args.Get(1).(int64), args.Error(2)
}

func (m *linkServiceMock) GetLinkByShortCode(ctx context.Context, code string) (*domain.Link, error) {
	args := m.Called(ctx, code)
	link, _ := args.Get(0).(*domain.Link)
	return link, args.Error(1)
}

func newTestRouter(service *linkServiceMock, notFoundRedirect string) http.Handler {
	cfg := &config.Config{
		DisableTrackParam:  "nostat",
		NotFoundRedirectTo: notFoundRedirect,
	}
	return NewRouter(NewHTTPHandler(service, cfg, zerolog.Nop()), nil, zerolog.Nop())
}

func TestRedirect_RecordsVisit(t *testing.T) {
	service := &linkServiceMock{recorded: make(chan struct{}, 1)}
	service.On("GetOriginalURL", mock.Anything, "abc123").Return("https://example.com", nil)
	service.On("RecordVisit", mock.Anything, "abc123", "https://ref.example", "test-agent", "203.0.113.7").Return(nil)

	req := httptest.NewRequest(http.MethodGet, "/abc123", nil)
	req.Header.Set("Referer", "https://ref.example")
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	rr := httptest.NewRecorder()

	newTestRouter(service, "").ServeHTTP(rr, req)

	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "https://example.com", rr.Header().Get("Location"))

	select {
	case <-service.recorded:
	case <-time.After(time.Second):
		t.Fatal("visit was not recorded")
	}
	service.AssertExpectations(t)
}

func TestRedirect_TrackParamDisablesTracking(t *testing.T) {
	service := &linkServiceMock{}
	service.On("GetOriginalURL", mock.Anything, "abc123").Return("https://example.com", nil)

	rr := httptest.NewRecorder()
	newTestRouter(service, "").ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/abc123?nostat", nil))

	assert.Equal(t, http.StatusFound, rr.Code)
	service.AssertNotCalled(t, "RecordVisit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRedirect_NotFound(t *testing.T) {
	tests := []struct {
		name             string
		notFoundRedirect string
		expectedStatus   int
		expectedLocation string
	}{
		{name: "Plain 404", expectedStatus: http.StatusNotFound},
		{
			name:             "Configured Redirect",
			notFoundRedirect: "https://example.com/404",
			expectedStatus:   http.StatusFound,
			expectedLocation: "https://example.com/404",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &linkServiceMock{}
			service.On("GetOriginalURL", mock.Anything, "missing").Return("", domain.ErrLinkNotFound)

			rr := httptest.NewRecorder()
			newTestRouter(service, tt.notFoundRedirect).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/missing", nil))

			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Equal(t, tt.expectedLocation, rr.Header().Get("Location"))
		})
	}
}

func TestCreate(t *testing.T) {
	service := &linkServiceMock{}
	service.On("Shorten", mock.Anything, "https://example.com", "Example", []string{"demo"}, "").
		Return(&domain.Link{ID: 1, ShortCode: "abc123", OriginalURL: "https://example.com"}, nil)

	body, _ := json.Marshal(map[string]interface{}{
		"original_url": "https://example.com",
		"title":        "Example",
		"tags":         []string{"demo"},
	})
	rr := httptest.NewRecorder()
	newTestRouter(service, "").ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/links", bytes.NewReader(body)))

	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var link domain.Link
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&link))
	assert.Equal(t, "abc123", link.ShortCode)
}

func TestStats_ErrorMapping(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		err            error
		expectedStatus int
	}{
		{name: "Invalid ID", path: "/api/v1/links/abc/stats", expectedStatus: http.StatusBadRequest},
		{name: "Missing Link", path: "/api/v1/links/7/stats", err: domain.ErrLinkNotFound, expectedStatus: http.StatusNotFound},
		{name: "Storage Error", path: "/api/v1/links/7/stats", err: errors.New("boom"), expectedStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &linkServiceMock{}
			service.On("GetLinkStats", mock.Anything, int64(7)).Return(nil, tt.err)

			rr := httptest.NewRecorder()
			newTestRouter(service, "").ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.expectedStatus, rr.Code)
		})
	}
}

func TestVisits(t *testing.T) {
	service := &linkServiceMock{}
	located := domain.NewVisitLocation(domain.Location{CountryCode: "ES", CountryName: "Spain"})
	service.On("ListVisits", mock.Anything, int64(3), 2, 5).Return([]domain.Visit{
		{ID: "visit-1", LinkID: 3, Location: &located},
		{ID: "visit-2", LinkID: 3},
	}, nil)

	rr := httptest.NewRecorder()
	newTestRouter(service, "").ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/links/3/visits?page=2&limit=5", nil))

	require.Equal(t, http.StatusOK, rr.Code)

	raw, err := io.ReadAll(rr.Body)
	require.NoError(t, err)

	var resp struct {
		Data []domain.Visit `json:"data"`
		Page int            `json:"page"`
	}
	require.NoError(t, json.Unmarshal(raw, &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, 2, resp.Page)
	require.NotNil(t, resp.Data[0].Location)
	assert.Equal(t, "Spain", resp.Data[0].Location.CountryName)
	assert.Nil(t, resp.Data[1].Location)
}

func TestHealthz(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter(&linkServiceMock{}, "").ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"message":"ok"}`, rr.Body.String())
}

func TestWait_BlocksUntilVisitIsRecorded(t *testing.T) {
	release := make(chan struct{})
	service := &linkServiceMock{}
	service.On("GetOriginalURL", mock.Anything, "abc123").Return("https://example.com", nil)
	service.On("RecordVisit", mock.Anything, "abc123", "", "", "192.0.2.1").
		Run(func(mock.Arguments) { <-release }).
		Return(nil)

	h := NewHTTPHandler(service, &config.Config{DisableTrackParam: "nostat"}, zerolog.Nop())
	router := NewRouter(h, nil, zerolog.Nop())

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/abc123", nil))
	require.Equal(t, http.StatusFound, rr.Code)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.Wait(ctx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, h.Wait(context.Background()))
	service.AssertExpectations(t)
}
