package http

// SendMessageRequest is the body of POST /notify/send.
type SendMessageRequest struct {
	Phone   string `json:"phone" validate:"required,min=8"`
	Message string `json:"message" validate:"required,max=4096"`
}

// SendTemplateRequest is the body of POST /notify/template.
type SendTemplateRequest struct {
	Phone       string         `json:"phone" validate:"required,min=8"`
	TemplateKey string         `json:"template_key" validate:"required"`
	Data        map[string]any `json:"data"`
}

// SendResponse is returned by both notify endpoints.
type SendResponse struct {
	Success           bool   `json:"success"`
	Provider          string `json:"provider,omitempty"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
	Error             string `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}
