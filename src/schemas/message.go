package schemas

// SendMessageRequest represents the request body for sending one message
type SendMessageRequest struct {
	To       string `json:"to" binding:"required"`
	Body     string `json:"body" binding:"required"`
	MediaURL string `json:"media_url,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

// SendMessageResponse represents the result of a single send
type SendMessageResponse struct {
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`
}

// BulkMessageItem is one entry of a bulk send request
type BulkMessageItem struct {
	To       string `json:"to" binding:"required"`
	Body     string `json:"body" binding:"required"`
	MediaURL string `json:"media_url,omitempty"`
}

// BulkSendRequest represents the request body for a bulk send
type BulkSendRequest struct {
	Messages []BulkMessageItem `json:"messages" binding:"required,min=1,dive"`
}
