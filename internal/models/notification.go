package models

// NotificationMessage is the content handed to the notification collaborator.
// The scheduler decides recipients and content, never transport.
type NotificationMessage struct {
	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
}

// NotificationResult summarises a best-effort fan-out.
type NotificationResult struct {
	Notified int `json:"notified"`
	Failed   int `json:"failed"`
}
