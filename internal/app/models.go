package app

type availabilityQuery struct {
	Start string `form:"start" binding:"required"`
	End   string `form:"end" binding:"required"`
}

type slotsQuery struct {
	Date string `form:"date" binding:"required"`
}

type bookSlotRequest struct {
	Date      string `json:"date" binding:"required"`
	StartTime string `json:"startTime" binding:"required"`
	EndTime   string `json:"endTime" binding:"required"`
}

type bookSlotResponse struct {
	Message        string `json:"message"`
	ConfirmationID string `json:"confirmationId"`
	Link           string `json:"link"`
	Date           string `json:"date"`
	StartTime      string `json:"startTime"`
	EndTime        string `json:"endTime"`
}

type contactRequest struct {
	Name          string `json:"name" binding:"required"`
	Email         string `json:"email" binding:"required,email"`
	Phone         string `json:"phone"`
	Service       string `json:"service"`
	Message       string `json:"message" binding:"required"`
	PreferredDate string `json:"preferredDate"`
}

type healthResponse struct {
	Status        string `json:"status"`
	Authenticated bool   `json:"authenticated"`
}
