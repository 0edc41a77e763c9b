package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/wadjakorntonsri/geo-shortener/pkg/core/domain"
	"github.com/wadjakorntonsri/geo-shortener/pkg/ports"
)

// VisitLocator attaches a geographic location to every newly recorded visit.
// It is subscribed to domain.VisitOccurred and absorbs every failure: the
// dispatcher never sees an error coming from here.
type VisitLocator struct {
	resolver  ports.IPLocationResolver
	repo      ports.VisitRepository
	dbUpdater ports.GeolocationDBUpdater
	logger    zerolog.Logger
}

func NewVisitLocator(
	resolver ports.IPLocationResolver,
	repo ports.VisitRepository,
	dbUpdater ports.GeolocationDBUpdater,
	logger zerolog.Logger,
) *VisitLocator {
	return &VisitLocator{
		resolver:  resolver,
		repo:      repo,
		dbUpdater: dbUpdater,
		logger:    logger,
	}
}

// HandleVisitOccurred drives one visit to a terminal outcome.
func (l *VisitLocator) HandleVisitOccurred(ctx context.Context, event domain.VisitOccurred) {
	visitID := event.VisitID

	visit, err := l.repo.FindVisit(ctx, visitID)
	if err != nil {
		l.logger.Error().Err(err).Str("visit_id", visitID).Msg("Could not load visit to locate it.")
		return
	}
	if visit == nil {
		l.logger.Warn().Msgf(`Tried to locate visit with id "%s", but it does not exist.`, visitID)
		return
	}

	l.locate(ctx, visit)
}

// LocateUnlocatedVisits runs the locator over visits that have no stored
// location yet, e.g. the ones left behind while the database was missing.
func (l *VisitLocator) LocateUnlocatedVisits(ctx context.Context, limit int) (int, error) {
	visits, err := l.repo.FindUnlocatedVisits(ctx, limit)
	if err != nil {
		return 0, err
	}

	for _, visit := range visits {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		l.locate(ctx, visit)
	}

	return len(visits), nil
}

func (l *VisitLocator) locate(ctx context.Context, visit *domain.Visit) {
	if visit.IsLocated() {
		l.logger.Debug().Str("visit_id", visit.ID).Msg("visit already located, skipping")
		return
	}

	if !visit.IsLocatable() {
		visit.Locate(domain.NewVisitLocation(domain.EmptyLocation()))
		l.flush(ctx, visit)
		return
	}

	if err := l.dbUpdater.CheckForDatabaseUpdate(ctx); err != nil {
		var updateErr *domain.UpdateFailedError
		if errors.As(err, &updateErr) && !updateErr.OldCopyExists {
			l.logger.Error().Err(err).Str("visit_id", visit.ID).Msgf(
				"GeoLite2 database download failed. It is not possible to locate visit with id %s.",
				visit.ID,
			)
			// kept in memory only, the visit stays unlocated in storage so it can be retried
			visit.Locate(domain.UnknownVisitLocation())
			return
		}

		l.logger.Warn().Err(err).Msg("GeoLite2 database update failed. Proceeding with old version.")
	}

	addr := visit.RemoteAddr()
	loc, err := l.resolver.ResolveIPLocation(ctx, addr)
	if errors.Is(err, domain.ErrInvalidAddress) {
		l.logger.Warn().Err(err).Str("visit_id", visit.ID).Str("remote_addr", addr).Msgf(
			`Tried to locate visit with id "%s", but its address seems to be wrong.`,
			visit.ID,
		)
		return
	}
	if err != nil {
		l.logger.Error().Err(err).Str("visit_id", visit.ID).Msg("Could not resolve visit location.")
		return
	}

	visit.Locate(domain.NewVisitLocation(loc))
	l.flush(ctx, visit)
}

func (l *VisitLocator) flush(ctx context.Context, visit *domain.Visit) {
	if err := l.repo.Flush(ctx, visit); err != nil {
		l.logger.Error().Err(err).Str("visit_id", visit.ID).Msg("Could not persist visit location.")
	}
}
