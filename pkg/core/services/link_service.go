package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/mileusna/useragent"
	"github.com/rs/zerolog"

	"github.com/wadjakorntonsri/geo-shortener/pkg/core/domain"
	"github.com/wadjakorntonsri/geo-shortener/pkg/ports"
)

type LinkService struct {
	repo       ports.LinkRepository
	visits     ports.VisitRepository
	dispatcher ports.EventDispatcher
	anonymize  bool
	logger     zerolog.Logger
}

func NewLinkService(
	repo ports.LinkRepository,
	visits ports.VisitRepository,
	dispatcher ports.EventDispatcher,
	anonymize bool,
	logger zerolog.Logger,
) *LinkService {
	return &LinkService{
		repo:       repo,
		visits:     visits,
		dispatcher: dispatcher,
		anonymize:  anonymize,
		logger:     logger,
	}
}

func (s *LinkService) Shorten(ctx context.Context, originalURL, title string, tags []string, customCode string) (*domain.Link, error) {
	if originalURL == "" {
		return nil, errors.New("original URL is required")
	}

	code := customCode
	if code == "" {
		var err error
		code, err = generateShortCode(6)
		if err != nil {
			return nil, err
		}
	} else {
		// Check if custom code exists
		existing, _ := s.repo.GetByShortCode(ctx, code)
		if existing != nil {
			return nil, errors.New("custom code already exists")
		}
	}

	link := &domain.Link{
		OriginalURL: originalURL,
		ShortCode:   code,
		Title:       title,
		Tags:        tags,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	if err := s.repo.Create(ctx, link); err != nil {
		return nil, err
	}

	return link, nil
}

func (s *LinkService) GetOriginalURL(ctx context.Context, code string) (string, error) {
	link, err := s.repo.GetByShortCode(ctx, code)
	if err != nil {
		return "", err
	}
	if link == nil {
		return "", domain.ErrLinkNotFound
	}
	return link.OriginalURL, nil
}

func (s *LinkService) UpdateLink(ctx context.Context, id int64, originalURL, title string, tags []string) (*domain.Link, error) {
	link, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, domain.ErrLinkNotFound
	}

	// Update fields if provided (naive partial update logic)
	if originalURL != "" {
		link.OriginalURL = originalURL
	}
	if title != "" {
		link.Title = title
	}
	if tags != nil {
		link.Tags = tags
	}
	link.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, link); err != nil {
		return nil, err
	}

	return link, nil
}

func (s *LinkService) DeleteLink(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

func (s *LinkService) ListLinks(ctx context.Context, page, limit int, search string, tag string) ([]domain.Link, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	offset := (page - 1) * limit

	filters := map[string]interface{}{
		"search": search,
		"tag":    tag,
	}

	links, err := s.repo.List(ctx, limit, offset, filters)
	if err != nil {
		return nil, 0, err
	}

	count, err := s.repo.Count(ctx, filters)
	if err != nil {
		return nil, 0, err
	}

	return links, count, nil
}

// RecordVisit stores the visit without a location and hands it to the
// locator. A failing dispatch is logged, the visit itself is already saved.
func (s *LinkService) RecordVisit(ctx context.Context, shortCode, referer, userAgent, ip string) error {
	link, err := s.repo.GetByShortCode(ctx, shortCode)
	if err != nil {
		return err
	}
	if link == nil {
		return domain.ErrLinkNotFound
	}

	visit := &domain.Visit{
		ID:        uuid.NewString(),
		LinkID:    link.ID,
		Visitor:   domain.NewVisitor(referer, userAgent, ip, s.anonymize),
		CreatedAt: time.Now(),
	}

	if err := s.visits.RecordVisit(ctx, visit); err != nil {
		return fmt.Errorf("recording visit: %w", err)
	}

	if err := s.dispatcher.Dispatch(ctx, domain.VisitOccurred{VisitID: visit.ID}); err != nil {
		s.logger.Warn().Err(err).Str("visit_id", visit.ID).Msg("could not dispatch visit for location")
	}

	return nil
}

func (s *LinkService) GetLinkStats(ctx context.Context, id int64) (*domain.LinkStats, error) {
	stats, err := s.repo.GetLinkStats(ctx, id)
	if err != nil {
		return nil, err
	}

	agents, err := s.repo.GetUserAgentCounts(ctx, id)
	if err != nil {
		return nil, err
	}

	stats.Browsers = make(map[string]int64)
	stats.OperatingSystems = make(map[string]int64)
	for _, a := range agents {
		ua := useragent.Parse(a.UserAgent)
		stats.Browsers[orUnknown(ua.Name)] += a.Count
		stats.OperatingSystems[orUnknown(ua.OS)] += a.Count
	}

	return stats, nil
}

func (s *LinkService) ListVisits(ctx context.Context, id int64, page, limit int) ([]domain.Visit, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	link, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, domain.ErrLinkNotFound
	}

	return s.visits.ListVisits(ctx, id, limit, (page-1)*limit)
}

func (s *LinkService) GetDashboard(ctx context.Context, limit int, search, tag, domainFilter string) ([]domain.Link, int64, error) {
	if limit < 1 {
		limit = 10
	}
	filters := map[string]interface{}{
		"search": search,
		"tag":    tag,
		"domain": domainFilter,
	}
	return s.repo.GetDashboardStats(ctx, limit, filters)
}

func (s *LinkService) GetLinkByShortCode(ctx context.Context, code string) (*domain.Link, error) {
	link, err := s.repo.GetByShortCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, domain.ErrLinkNotFound
	}
	return link, nil
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func generateShortCode(length int) (string, error) {
	b := make([]byte, length)
	for i := range b {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		b[i] = charset[num.Int64()]
	}
	return string(b), nil
}
