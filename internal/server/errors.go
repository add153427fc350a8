package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/kronusitsolutions/kronusmed/internal/apikey/domain"
	appointmentdomain "github.com/kronusitsolutions/kronusmed/internal/appointment/domain"
	"github.com/kronusitsolutions/kronusmed/internal/authorization"
	catalogdomain "github.com/kronusitsolutions/kronusmed/internal/catalog/domain"
	insurancedomain "github.com/kronusitsolutions/kronusmed/internal/insurance/domain"
	invoicedomain "github.com/kronusitsolutions/kronusmed/internal/invoice/domain"
	patientdomain "github.com/kronusitsolutions/kronusmed/internal/patient/domain"
)

// ServiceError is the wire form of a failed request.
type ServiceError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e *ServiceError) Error() string { return e.Code }

var (
	ErrInvalidRequest = &ServiceError{Status: http.StatusBadRequest, Code: "invalid_request", Message: "the request is malformed"}
	ErrUnauthorized   = &ServiceError{Status: http.StatusUnauthorized, Code: "unauthorized", Message: "authentication required"}
	ErrForbidden      = &ServiceError{Status: http.StatusForbidden, Code: "forbidden", Message: "insufficient permissions"}
	ErrNotFound       = &ServiceError{Status: http.StatusNotFound, Code: "not_found", Message: "resource not found"}
	ErrRateLimited    = &ServiceError{Status: http.StatusTooManyRequests, Code: "rate_limited", Message: "too many requests"}
	ErrInternal       = &ServiceError{Status: http.StatusInternalServerError, Code: "internal_error", Message: "internal server error"}
)

func newValidationError(field, code, message string) *ServiceError {
	return &ServiceError{Status: http.StatusBadRequest, Code: code, Message: message, Field: field}
}

type errorRule struct {
	target error
	status int
}

// Domain sentinels share spellings across packages but not identity, so
// every package's copy needs its own rule.
var errorRules = []errorRule{
	{catalogdomain.ErrInvalidID, http.StatusBadRequest},
	{catalogdomain.ErrInvalidName, http.StatusBadRequest},
	{catalogdomain.ErrInvalidPrice, http.StatusBadRequest},
	{catalogdomain.ErrNotFound, http.StatusNotFound},

	{patientdomain.ErrInvalidID, http.StatusBadRequest},
	{patientdomain.ErrInvalidName, http.StatusBadRequest},
	{patientdomain.ErrInvalidDocument, http.StatusBadRequest},
	{patientdomain.ErrDuplicateDocument, http.StatusConflict},
	{patientdomain.ErrNotFound, http.StatusNotFound},

	{insurancedomain.ErrInvalidID, http.StatusBadRequest},
	{insurancedomain.ErrInvalidName, http.StatusBadRequest},
	{insurancedomain.ErrInvalidPercent, http.StatusBadRequest},
	{insurancedomain.ErrPolicyNotFound, http.StatusNotFound},
	{insurancedomain.ErrServiceNotFound, http.StatusNotFound},

	{appointmentdomain.ErrInvalidID, http.StatusBadRequest},
	{appointmentdomain.ErrInvalidSlot, http.StatusBadRequest},
	{appointmentdomain.ErrInvalidFilter, http.StatusBadRequest},
	{appointmentdomain.ErrSlotTaken, http.StatusConflict},
	{appointmentdomain.ErrInvalidState, http.StatusConflict},
	{appointmentdomain.ErrPatientNotFound, http.StatusNotFound},
	{appointmentdomain.ErrNotFound, http.StatusNotFound},

	{invoicedomain.ErrInvalidID, http.StatusBadRequest},
	{invoicedomain.ErrInvalidQuantity, http.StatusBadRequest},
	{invoicedomain.ErrInvalidAmount, http.StatusBadRequest},
	{invoicedomain.ErrInvalidFilter, http.StatusBadRequest},
	{invoicedomain.ErrNoLineItems, http.StatusBadRequest},
	{invoicedomain.ErrMissingReason, http.StatusBadRequest},
	{invoicedomain.ErrMissingAuthorizer, http.StatusBadRequest},
	{invoicedomain.ErrNotFound, http.StatusNotFound},
	{invoicedomain.ErrPatientNotFound, http.StatusNotFound},
	{invoicedomain.ErrServiceNotFound, http.StatusNotFound},
	{invoicedomain.ErrLineItemNotFound, http.StatusNotFound},
	{invoicedomain.ErrServiceInactive, http.StatusConflict},
	{invoicedomain.ErrInvalidState, http.StatusConflict},
	{invoicedomain.ErrLastLineItem, http.StatusConflict},
	{invoicedomain.ErrAlreadyExonerated, http.StatusConflict},
	{invoicedomain.ErrConcurrencyConflict, http.StatusConflict},
	{invoicedomain.ErrNumberExhausted, http.StatusConflict},
	{invoicedomain.ErrOverpayment, http.StatusUnprocessableEntity},

	{apikeydomain.ErrInvalidID, http.StatusBadRequest},
	{apikeydomain.ErrInvalidName, http.StatusBadRequest},
	{apikeydomain.ErrNotFound, http.StatusNotFound},
	{apikeydomain.ErrUnauthorized, http.StatusUnauthorized},

	{authorization.ErrForbidden, http.StatusForbidden},
	{authorization.ErrInvalidActor, http.StatusUnauthorized},
}

// AbortWithError translates a domain error into its HTTP response and stops
// the handler chain. Unknown errors never leak their text to the client.
func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		c.AbortWithStatusJSON(svcErr.Status, gin.H{"error": svcErr})
		return
	}

	for _, rule := range errorRules {
		if errors.Is(err, rule.target) {
			c.AbortWithStatusJSON(rule.status, gin.H{"error": &ServiceError{
				Status: rule.status,
				Code:   rule.target.Error(),
			}})
			return
		}
	}

	// Clinic scope is attached by auth middleware; losing it means the
	// request never authenticated.
	if err.Error() == "invalid_clinic" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthorized})
		return
	}

	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": ErrInternal})
}
