package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid database execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrOperationFailed    = errors.New("operation failed")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrRateLimited        = errors.New("too many requests")

	// Subscription lifecycle
	ErrNoActiveSubscription     = errors.New("no active subscription")
	ErrActiveSubscriptionExists = errors.New("user already has an active subscription")
	ErrInvalidUpgrade           = errors.New("target plan is not an upgrade")
	ErrInvalidTransition        = errors.New("invalid subscription status transition")
	ErrPlanNotFound             = errors.New("plan not found")
	ErrFreePlanAutoRenew        = errors.New("free plan cannot auto-renew")
	ErrNoPaymentMethod          = errors.New("no payment method on file")
	ErrAutoRenewDisabled        = errors.New("auto-renew is disabled")
	ErrRenewalWindowNotOpen     = errors.New("renewal window is not open yet")
	ErrMaxRetriesExceeded       = errors.New("maximum renewal retries exceeded")
	ErrRenewalPeriodMismatch    = errors.New("renewal charge does not match the current period")
	ErrInvalidIntent            = errors.New("invalid payment intent metadata")
	ErrPaymentNotCompleted      = errors.New("payment is not completed")

	// Refunds
	ErrRefundRequestNotFound  = errors.New("refund request not found")
	ErrPaymentNotLinked       = errors.New("refund request is not linked to a payment")
	ErrNoPaymentIntent        = errors.New("payment has no processor transaction id")
	ErrRefundAlreadyProcessed = errors.New("refund request already processed")

	// Payment gateway
	ErrGateway         = errors.New("payment gateway error")
	ErrPaymentDeclined = errors.New("payment declined")
	ErrInvalidWebhook  = errors.New("invalid webhook signature")
)

// Kind groups errors into the categories the HTTP layer answers with.
type Kind string

const (
	KindValidation Kind = "validation"
	KindAuth       Kind = "auth"
	KindNotFound   Kind = "not_found"
	KindGateway    Kind = "gateway"
	KindConflict   Kind = "conflict"
	KindInternal   Kind = "internal"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrInvalidArgument, KindValidation},
	{ErrFreePlanAutoRenew, KindValidation},
	{ErrNoPaymentMethod, KindValidation},
	{ErrAutoRenewDisabled, KindValidation},
	{ErrRenewalWindowNotOpen, KindValidation},
	{ErrInvalidIntent, KindValidation},
	{ErrNoPaymentIntent, KindValidation},
	{ErrPaymentNotLinked, KindValidation},
	{ErrPaymentNotCompleted, KindValidation},
	{ErrInvalidWebhook, KindValidation},
	{ErrRateLimited, KindValidation},

	{ErrUnauthorized, KindAuth},
	{ErrForbidden, KindAuth},

	{ErrNotFound, KindNotFound},
	{ErrPlanNotFound, KindNotFound},
	{ErrNoActiveSubscription, KindNotFound},
	{ErrRefundRequestNotFound, KindNotFound},

	{ErrPaymentDeclined, KindGateway},
	{ErrGateway, KindGateway},

	{ErrInvalidUpgrade, KindConflict},
	{ErrMaxRetriesExceeded, KindConflict},
	{ErrRenewalPeriodMismatch, KindConflict},
	{ErrRefundAlreadyProcessed, KindConflict},
	{ErrActiveSubscriptionExists, KindConflict},
	{ErrInvalidTransition, KindConflict},
	{ErrAlreadyExists, KindConflict},
}

// KindOf classifies err. Unknown errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
