package handlers

import (
	"errors"

	"tournament-settlement/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type WalletHandler struct {
	Ledger services.Ledger
	Logger *zap.Logger
}

func SetupWalletRoutes(router fiber.Router, ledger services.Ledger, logger *zap.Logger) {
	h := &WalletHandler{Ledger: ledger, Logger: logger}

	wallets := router.Group("/wallets")
	wallets.Post("/transactions", h.CreateTransaction)
	wallets.Get("/:user_id/balance", h.GetBalance)
	wallets.Get("/:user_id/transactions", h.ListTransactions)
	wallets.Get("/:user_id/reconcile", h.Reconcile)
}

func (h *WalletHandler) GetBalance(c *fiber.Ctx) error {
	wallet, err := h.Ledger.GetBalance(c.UserContext(), c.Params("user_id"))
	if err != nil {
		return h.ledgerError(c, err)
	}
	return c.JSON(fiber.Map{
		"user_id":      wallet.UserID,
		"balance":      wallet.Balance,
		"last_updated": wallet.LastUpdated,
	})
}

func (h *WalletHandler) ListTransactions(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 0)

	result, err := h.Ledger.ListTransactions(c.UserContext(), c.Params("user_id"), page, limit)
	if err != nil {
		return h.ledgerError(c, err)
	}
	return c.JSON(result)
}

func (h *WalletHandler) CreateTransaction(c *fiber.Ctx) error {
	var req services.TransactionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	tx, balance, err := h.Ledger.ApplyTransaction(c.UserContext(), req)
	if err != nil {
		return h.ledgerError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"transaction": tx,
		"new_balance": balance,
	})
}

func (h *WalletHandler) Reconcile(c *fiber.Ctx) error {
	result, err := h.Ledger.Reconcile(c.UserContext(), c.Params("user_id"))
	if err != nil {
		return h.ledgerError(c, err)
	}
	return c.JSON(fiber.Map{
		"user_id":          result.UserID,
		"balance":          result.Balance,
		"transactions_sum": result.TransactionsSum,
		"drift":            result.Drift,
		"consistent":       result.Consistent(),
	})
}

func (h *WalletHandler) ledgerError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrMissingUserID),
		errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrInvalidTransactionType),
		errors.Is(err, services.ErrMissingDescription):
		status = fiber.StatusBadRequest
	case errors.Is(err, services.ErrDuplicateSettlement):
		status = fiber.StatusConflict
	case errors.Is(err, services.ErrInsufficientBalance):
		status = fiber.StatusUnprocessableEntity
	}

	if status == fiber.StatusInternalServerError {
		h.Logger.Error("[WalletAPI] ledger request failed", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(status).JSON(fiber.Map{"error": "internal server error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
