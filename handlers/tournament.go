package handlers

import (
	"context"
	"errors"

	"tournament-settlement/models"
	"tournament-settlement/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// TournamentSettler is the part of the settlement processor exposed to operators.
type TournamentSettler interface {
	ProcessTournament(ctx context.Context, tournamentID string) (services.SettlementState, *models.SettlementReport, error)
}

type SettlementHandler struct {
	Settler TournamentSettler
	Logger  *zap.Logger
}

// SetupSettlementRoutes lets an operator force one tournament through settlement
// outside the scheduler tick.
func SetupSettlementRoutes(router fiber.Router, settler TournamentSettler, logger *zap.Logger) {
	h := &SettlementHandler{Settler: settler, Logger: logger}
	router.Post("/tournaments/:id/settle", h.Settle)
}

func (h *SettlementHandler) Settle(c *fiber.Ctx) error {
	id := c.Params("id")
	h.Logger.Info("[SettlementAPI] manual settlement requested", zap.String("tournament_id", id))

	state, report, err := h.Settler.ProcessTournament(c.UserContext(), id)

	body := fiber.Map{"tournament_id": id, "state": state}
	if report != nil {
		body["report"] = report
	}

	switch {
	case err == nil:
		return c.JSON(body)
	case errors.Is(err, services.ErrTournamentNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrSettlementLocked), errors.Is(err, services.ErrSettlementNotDue):
		body["error"] = err.Error()
		return c.Status(fiber.StatusConflict).JSON(body)
	case errors.Is(err, services.ErrVerificationUnavailable):
		body["error"] = err.Error()
		return c.Status(fiber.StatusServiceUnavailable).JSON(body)
	}

	body["error"] = err.Error()
	if state == services.StateSettledInvalid {
		return c.JSON(body)
	}
	return c.Status(fiber.StatusInternalServerError).JSON(body)
}
