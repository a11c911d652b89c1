package dto

// SendNotificationRequest broadcasts a message to a list of users.
type SendNotificationRequest struct {
	Recipients []string `json:"recipients" validate:"required,min=1,dive,required"`
	Title      string   `json:"title" validate:"required,max=100"`
	Message    string   `json:"message" validate:"required,max=500"`
}

// SendNotificationResult reports how many notifications were queued.
type SendNotificationResult struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}
