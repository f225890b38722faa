package app

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"availability-service/internal/booking"
	"availability-service/internal/contact"
)

// POST /book-slot
func (a *App) BookSlotHandler(c *gin.Context) {
	var req bookSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	conf, err := a.Booking.BookSlot(c.Request.Context(), booking.Request{
		Date:      req.Date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
	})
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, bookSlotResponse{
		Message:        "Booking successful!",
		ConfirmationID: conf.ID,
		Link:           conf.Link,
		Date:           conf.Date,
		StartTime:      conf.Start,
		EndTime:        conf.End,
	})
}

// POST /contact
func (a *App) ContactHandler(c *gin.Context) {
	var req contactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}
	err := a.Contact.Submit(c.Request.Context(), contact.Message{
		Name:          req.Name,
		Email:         req.Email,
		Phone:         req.Phone,
		Service:       req.Service,
		Body:          req.Message,
		PreferredDate: req.PreferredDate,
	})
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Message sent successfully!"})
}

// GET /healthz
func (a *App) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{Status: "ok", Authenticated: a.Gateway.Authenticated()})
}
