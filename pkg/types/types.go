// Package types defines core domain types used throughout the application.
package types

import "time"

// Credentials carries whatever a platform login needs. Extractors read the
// fields they care about and ignore the rest.
type Credentials struct {
	Identifier string // email, phone number, or org code
	Password   string // password, OTP, or pre-issued token
	Host       string // API host for white-label platforms
	UserID     string // pre-issued user ID, when the platform hands one out
	Token      string // pre-issued bearer token, skips the login round trip
}

// Session is the authenticated state an extractor threads through a run.
type Session struct {
	Platform string
	Token    string
	UserID   string
	Host     string
	// Extra holds platform-specific values (csrf tokens, org hashes,
	// cookie jars are kept on the client, not here).
	Extra map[string]string
}

// Course is one selectable course or batch on a platform.
type Course struct {
	ID    string
	Name  string
	Extra map[string]string
}

// NodeKind classifies a node in a course hierarchy.
type NodeKind string

const (
	NodeFolder NodeKind = "folder"
	NodeVideo  NodeKind = "video"
	NodePDF    NodeKind = "pdf"
	NodeImage  NodeKind = "image"
	NodeTest   NodeKind = "test"
)

// ContentNode is one node of a platform's course hierarchy.
type ContentNode struct {
	ID    string
	Title string
	Kind  NodeKind
	URL   string
	Extra map[string]string
}

// Progress is a point-in-time snapshot of an extraction run.
type Progress struct {
	Processed int
	Total     int
	Elapsed   time.Duration
	ETA       time.Duration
}

// Update is one inbound message from the chat boundary.
type Update struct {
	UpdateID  int64
	ChatID    int64
	UserID    int64
	Username  string
	Text      string
	MessageID int64
}

// Document is an outbound file for the chat boundary.
type Document struct {
	Name    string
	Caption string
	Data    []byte
}
