package app

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
)

// GET /auth/start
func (a *App) AuthStartHandler(c *gin.Context) {
	consentURL, err := a.Gateway.BeginConsent()
	if err != nil {
		a.fail(c, err)
		return
	}
	c.Redirect(http.StatusFound, consentURL)
}

// GET /auth/callback?code=...&state=...
func (a *App) AuthCallbackHandler(c *gin.Context) {
	ctx := c.Request.Context()
	if denied := c.Query("error"); denied != "" {
		loggerFrom(ctx).WarnContext(ctx, "consent denied", "reason", denied)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "auth_failed", "message": "Consent was not granted."})
		return
	}
	code := c.Query("code")
	if code == "" {
		badRequest(c, "authorization code missing", map[string]string{"code": "code is required"})
		return
	}

	if err := a.Gateway.CompleteConsent(ctx, code, c.Query("state")); err != nil {
		loggerFrom(ctx).WarnContext(ctx, "consent failed", "error", err)
		a.fail(c, err)
		return
	}
	loggerFrom(ctx).InfoContext(ctx, "calendar credential stored")

	if a.FrontendURL == "" {
		c.JSON(http.StatusOK, gin.H{"message": "Authorization successful"})
		return
	}
	target, err := url.Parse(a.FrontendURL)
	if err != nil {
		a.fail(c, err)
		return
	}
	q := target.Query()
	q.Set("auth", "success")
	target.RawQuery = q.Encode()
	c.Redirect(http.StatusFound, target.String())
}

// GET /availability?start=YYYY-MM-DD&end=YYYY-MM-DD
func (a *App) AvailabilityHandler(c *gin.Context) {
	var q availabilityQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindFailed(c, err)
		return
	}
	first, err := a.Availability.ParseDate(q.Start)
	if err != nil {
		a.fail(c, err)
		return
	}
	last, err := a.Availability.ParseDate(q.End)
	if err != nil {
		a.fail(c, err)
		return
	}

	m, err := a.Availability.RangeAvailability(c.Request.Context(), first, last)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// GET /availability/slots?date=YYYY-MM-DD
func (a *App) SlotsHandler(c *gin.Context) {
	var q slotsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindFailed(c, err)
		return
	}
	day, err := a.Availability.ParseDate(q.Date)
	if err != nil {
		a.fail(c, err)
		return
	}
	out, err := a.Availability.DaySlots(c.Request.Context(), day)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
