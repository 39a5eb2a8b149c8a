package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/theheadmen/cafeloyalty/internal/dbconnector"
	"github.com/theheadmen/cafeloyalty/internal/models"
)

// ReconcileVisitsLogic settles visits that were recorded before now-grace but
// whose reward was never settled. It returns how many visits were settled.
func ReconcileVisitsLogic(ctx context.Context, storage Storage, notifier Notifier, grace time.Duration, now time.Time) (int, error) {
	var visits []dbconnector.Visit
	if err := storage.GetUnsettledVisits(ctx, now.Add(-grace), &visits); err != nil {
		return 0, err
	}

	settled := 0
	for _, visit := range visits {
		var user dbconnector.User
		if err := storage.GetUserByUserID(ctx, visit.UserID, &user); err != nil {
			log.Error().Err(err).Uint("visit_id", visit.ID).Msg("reconcile: user lookup failed")
			continue
		}
		result := models.CheckoutResult{State: models.StateVisitRecorded, Visit: visit, User: user}
		// one broken visit must not block the others
		if _, err := settleVisit(ctx, storage, notifier, result); err != nil {
			log.Error().Err(err).Uint("visit_id", visit.ID).Msg("reconcile: visit still unsettled")
			continue
		}
		settled++
	}
	if settled > 0 {
		log.Info().Int("settled", settled).Int("found", len(visits)).Msg("reconciled visits")
	}
	return settled, nil
}
