// Package paymentwebhook принимает события Stripe.
package paymentwebhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/magabrotheeeer/finance-saas/internal/http/response"
	"github.com/magabrotheeeer/finance-saas/internal/lib/sl"
	"github.com/magabrotheeeer/finance-saas/internal/lib/stripepay"
	"github.com/magabrotheeeer/finance-saas/internal/services/payment"
)

// Stripe ограничивает размер события 256 КБ; берём с запасом.
const maxPayloadBytes = 512 << 10

type Service interface {
	HandleStripeWebhook(ctx context.Context, payload []byte, signature string) error
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// Stripe godoc
// @Summary Webhook Stripe
// @Description Подпись проверяется по заголовку Stripe-Signature. Повторная доставка события безопасна.
// @Tags Payments
// @Accept json
// @Produce json
// @Param Stripe-Signature header string true "Подпись события"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Failure 503 {object} response.ErrorResponse
// @Router /api/payments/stripe/webhook [post]
func (h *Handler) Stripe(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.paymentwebhook.stripe"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		response.Fail(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	err = h.service.HandleStripeWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case errors.Is(err, stripepay.ErrInvalidSignature):
		log.Warn("stripe webhook rejected", sl.Err(err))
		response.Fail(w, r, http.StatusBadRequest, "invalid signature")
	case errors.Is(err, stripepay.ErrNotConfigured):
		response.Fail(w, r, http.StatusServiceUnavailable, stripepay.ErrNotConfigured.Error())
	case errors.Is(err, payment.ErrNotFound), errors.Is(err, payment.ErrInvalidState):
		// Повтор доставки не изменит состояние платежа.
		log.Warn("stripe event acknowledged without effect", sl.Err(err))
		response.Send(w, r, http.StatusOK, response.OK(nil))
	case err != nil:
		// 5xx заставит Stripe повторить доставку.
		log.Error("failed to handle stripe event", sl.Err(err))
		response.Internal(w, r)
	default:
		response.Send(w, r, http.StatusOK, response.OK(nil))
	}
}
