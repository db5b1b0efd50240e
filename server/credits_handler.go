package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/checkout/session"
	"github.com/stripe/stripe-go/v78/webhook"

	"soundscape/core/entitle"
	"soundscape/logger"
	"soundscape/model"
)

// packPriceCents is the checkout price per pack, in USD cents.
var packPriceCents = map[string]int64{
	"trial":   100,
	"starter": 400,
	"creator": 700,
	"studio":  1500,
}

// BalanceHandler returns the device's remaining credits, cached in Redis.
func (h *APIHandler) BalanceHandler(w http.ResponseWriter, r *http.Request) {
	hash := entitle.HashDeviceID(deviceID(r))

	if balance, ok, err := h.balances.Get(r.Context(), hash); err == nil && ok {
		writeJSON(w, http.StatusOK, map[string]int{"credits": balance})
		return
	}

	balance, err := h.ledger.Balance(r.Context(), hash)
	if err != nil {
		logger.Error("balance lookup failed", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to read balance")
		return
	}
	if err := h.balances.Set(r.Context(), hash, balance); err != nil {
		logger.Warn("balance cache write failed", logger.ErrorField(err))
	}
	writeJSON(w, http.StatusOK, map[string]int{"credits": balance})
}

type claimRequest struct {
	SessionID string `json:"sessionId"`
}

type claimResponse struct {
	Credits    int    `json:"credits"`
	ProofToken string `json:"proofToken"`
}

// ClaimHandler converts a paid checkout session into credits for this device
// and mints an entitlement proof token.
func (h *APIHandler) ClaimHandler(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId required")
		return
	}

	device := deviceID(r)
	ent, err := h.entitle.Claim(r.Context(), req.SessionID, device)
	switch {
	case errors.Is(err, entitle.ErrPurchaseNotFound):
		writeError(w, http.StatusNotFound, "unknown checkout session")
		return
	case errors.Is(err, entitle.ErrPurchaseNotPaid):
		writeError(w, http.StatusConflict, "payment not confirmed yet")
		return
	case errors.Is(err, entitle.ErrAlreadyClaimed):
		writeError(w, http.StatusConflict, "purchase already claimed by another device")
		return
	case err != nil:
		logger.Error("claim failed", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to claim purchase")
		return
	}

	if err := h.balances.Invalidate(r.Context(), ent.DeviceIDHash); err != nil {
		logger.Warn("balance invalidation failed", logger.ErrorField(err))
	}

	token, err := entitle.SignProof([]byte(h.cfg.TokenSecret), ent.ID, ent.DeviceIDHash)
	if err != nil {
		logger.Error("proof signing failed", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to mint proof token")
		return
	}

	writeJSON(w, http.StatusOK, claimResponse{
		Credits:    ent.CreditsRemaining,
		ProofToken: token,
	})
}

type checkoutRequest struct {
	Pack string `json:"pack"`
}

// CheckoutHandler creates a payment session for a credit pack and records
// the pending purchase.
func (h *APIHandler) CheckoutHandler(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	credits, err := entitle.PackCredits(req.Pack)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown pack")
		return
	}

	stripe.Key = h.cfg.StripeSecretKey
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String("usd"),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(fmt.Sprintf("Soundscape %s pack (%d credits)", req.Pack, credits)),
				},
				UnitAmount: stripe.Int64(packPriceCents[req.Pack]),
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL: stripe.String(h.cfg.SiteURL + "/credits/claim?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(h.cfg.SiteURL + "/credits"),
	}
	params.AddMetadata("pack", req.Pack)

	s, err := session.New(params)
	if err != nil {
		logger.Error("checkout session creation failed", logger.ErrorField(err))
		writeError(w, http.StatusBadGateway, "failed to create checkout session")
		return
	}

	if err := h.entitle.RecordPurchase(r.Context(), s.ID, req.Pack, model.PurchasePending, ""); err != nil {
		logger.Error("pending purchase record failed", logger.ErrorField(err))
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": s.URL, "sessionId": s.ID})
}

const webhookBodyLimit = 64 * 1024

// StripeWebhookHandler verifies and applies payment events. Delivery is
// at-least-once, so everything downstream is an idempotent upsert.
func (h *APIHandler) StripeWebhookHandler(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, webhookBodyLimit))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read payload")
		return
	}

	event, err := webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), h.cfg.StripeWebhookSecret)
	if err != nil {
		logger.Warn("webhook signature rejected", logger.ErrorField(err))
		writeError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	if event.Type == "checkout.session.completed" {
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			writeError(w, http.StatusBadRequest, "malformed session payload")
			return
		}
		pack := sess.Metadata["pack"]
		email := ""
		if sess.CustomerDetails != nil {
			email = sess.CustomerDetails.Email
		}
		if err := h.entitle.RecordPurchase(r.Context(), sess.ID, pack, model.PurchasePaid, email); err != nil {
			if errors.Is(err, entitle.ErrUnknownPack) {
				// Acknowledge so the processor stops redelivering an event
				// this service can never apply.
				logger.Warn("ignoring paid session with unknown pack",
					logger.String("session_id", sess.ID), logger.String("pack", pack))
				w.WriteHeader(http.StatusOK)
				return
			}
			logger.Error("purchase confirmation failed",
				logger.String("session_id", sess.ID), logger.ErrorField(err))
			writeError(w, http.StatusInternalServerError, "failed to record purchase")
			return
		}
	}

	w.WriteHeader(http.StatusOK)
}
