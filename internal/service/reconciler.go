package service

import "github.com/akylbek/payment-system/payment-lifecycle/internal/models"

// Reconcile computes the canonical status of a payment from the gateway's
// raw charge status and its refund history. The gateway can complete a
// refund without updating the charge record itself, so the refund list is
// the only place local state can learn about it.
//
// Refunds are irrelevant unless the charge itself succeeded. The last
// refund in the list (gateway order, chronological) decides: only a
// succeeded refund flips the canonical status to refunded.
func Reconcile(chargeStatus models.PaymentStatus, refunds []models.RefundInfo) models.PaymentStatus {
	if chargeStatus != models.StatusSucceeded {
		return chargeStatus
	}

	if len(refunds) == 0 {
		return models.StatusSucceeded
	}

	if refunds[len(refunds)-1].Status == models.RefundStatusSucceeded {
		return models.StatusRefunded
	}
	return models.StatusSucceeded
}
