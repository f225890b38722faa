package app

import (
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"availability-service/internal/availability"
	"availability-service/internal/booking"
	"availability-service/internal/contact"
	"availability-service/internal/gateway"
)

const unauthenticatedMessage = "The calendar is not connected. An administrator must visit /auth/start to authenticate."

// fail writes the JSON error response for err. Every handler error goes
// through here.
func (a *App) fail(c *gin.Context, err error) {
	var verr *booking.ValidationError
	var berr *booking.Error
	switch {
	case errors.As(err, &verr):
		badRequest(c, "invalid booking request", verr.FieldErrors)
	case errors.Is(err, availability.ErrInvalidRange):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_range", "message": err.Error()})
	case errors.Is(err, contact.ErrInvalidMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "message": err.Error()})
	case errors.Is(err, gateway.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated", "message": unauthenticatedMessage})
	case errors.Is(err, gateway.ErrAuth):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "auth_failed", "message": "Authentication failed. Please retry the consent flow."})
	case errors.As(err, &berr):
		a.serverError(c, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "booking_failed",
			"message": "Booking failed: the slot may no longer be available. Please choose another slot.",
			"reason":  string(berr.Reason),
		})
	case errors.Is(err, gateway.ErrProvider):
		a.serverError(c, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "provider_error", "message": "The calendar provider request failed. Please try again."})
	case errors.Is(err, contact.ErrSend):
		a.serverError(c, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "mail_failed", "message": "Failed to send message. Please try again later."})
	default:
		a.serverError(c, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": "internal server error"})
	}
}

func (a *App) serverError(c *gin.Context, err error) {
	loggerFrom(c.Request.Context()).ErrorContext(c.Request.Context(), "request failed", "error", err)
}

func badRequest(c *gin.Context, message string, fields map[string]string) {
	body := gin.H{"error": "validation_failed", "message": message}
	if len(fields) > 0 {
		body["fields"] = fields
	}
	c.JSON(http.StatusBadRequest, body)
}

// bindFailed reports a request that did not bind or failed its binding
// rules.
func bindFailed(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		badRequest(c, "malformed request", nil)
		return
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			fields[fe.Field()] = fe.Field() + " is required"
		case "email":
			fields[fe.Field()] = fe.Field() + " must be a valid email address"
		default:
			fields[fe.Field()] = fe.Field() + " is invalid"
		}
	}
	badRequest(c, "missing or invalid fields", fields)
}

var fieldNamesOnce sync.Once

// useJSONFieldNames makes validation errors name fields the way clients
// send them.
func useJSONFieldNames() {
	fieldNamesOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
				if name != "" && name != "-" {
					return name
				}
			}
			return f.Name
		})
	})
}
