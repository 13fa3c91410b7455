package domain

import (
	"errors"
	"fmt"
)

// Kind is the closed set of failure kinds the core reports.
type Kind string

const (
	KindValidation   Kind = "VALIDATION"
	KindUnauthorized Kind = "UNAUTHORIZED"
	KindForbidden    Kind = "FORBIDDEN"
	KindInternal     Kind = "INTERNAL"

	KindProductNotFound  Kind = "PRODUCT_NOT_FOUND"
	KindCampaignNotFound Kind = "CAMPAIGN_NOT_FOUND"
	KindCouponNotFound   Kind = "COUPON_NOT_FOUND"
	KindOrderNotFound    Kind = "ORDER_NOT_FOUND"
	KindNoCampaigns      Kind = "NO_CAMPAIGNS_FOUND"

	KindAlreadyRated      Kind = "ALREADY_RATED"
	KindCouponAlreadyUsed Kind = "COUPON_ALREADY_USED"
	KindAlreadyInCampaign Kind = "ALREADY_IN_CAMPAIGN"
	KindDuplicateRequest  Kind = "DUPLICATE_REQUEST"

	KindInsufficientStock         Kind = "PRODUCT_WITHOUT_STOCK_AVAILABLE"
	KindCouponExpired             Kind = "COUPON_EXPIRED"
	KindCampaignExpiredOrNotFound Kind = "CAMPAIGN_EXPIRED_OR_NOT_FOUND"
)

// Class groups kinds into the taxonomy transports map onto status codes.
type Class int

const (
	ClassInternal Class = iota
	ClassNotFound
	ClassConflict
	ClassPrecondition
	ClassForbidden
	ClassUnauthorized
	ClassValidation
)

func (k Kind) Class() Class {
	switch k {
	case KindProductNotFound, KindCampaignNotFound, KindCouponNotFound, KindOrderNotFound, KindNoCampaigns:
		return ClassNotFound
	case KindAlreadyRated, KindCouponAlreadyUsed, KindAlreadyInCampaign, KindDuplicateRequest:
		return ClassConflict
	case KindInsufficientStock, KindCouponExpired, KindCampaignExpiredOrNotFound:
		return ClassPrecondition
	case KindForbidden:
		return ClassForbidden
	case KindUnauthorized:
		return ClassUnauthorized
	case KindValidation:
		return ClassValidation
	default:
		return ClassInternal
	}
}

// Error is the single error type returned by the core.
type Error struct {
	Kind     Kind
	EntityID int64
	Detail   string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil && e.Kind == KindInternal {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: k}) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

func NewError(kind Kind, id int64, format string, args ...any) *Error {
	return &Error{Kind: kind, EntityID: id, Detail: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Detail: fmt.Sprintf(format, args...)}
}

// Internal hides cause from callers; Detail stays generic.
func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Detail: "internal error", Cause: cause}
}

func ProductNotFound(id int64) *Error {
	return NewError(KindProductNotFound, id, "product %d not found", id)
}

func InsufficientStock(id int64, version int64, requested, available int) *Error {
	return NewError(KindInsufficientStock, id,
		"product %d version %d has %d units available, %d requested", id, version, available, requested)
}

func CouponNotFound(id int64) *Error {
	return NewError(KindCouponNotFound, id, "coupon %d not found", id)
}

func Forbidden(role string, action string) *Error {
	return &Error{Kind: KindForbidden, Detail: fmt.Sprintf("%s role required %s", role, action)}
}

// KindOf reports the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == kind
}

// AsDomain passes domain errors through and converts anything else to an
// internal error.
func AsDomain(err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return Internal(err)
}
