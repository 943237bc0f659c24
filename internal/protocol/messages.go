package protocol

import "encoding/json"

// TextMessage is the shape of a sendMessage / receiveMessage payload.
// Clients may add further fields; they are relayed untouched.
type TextMessage struct {
	Body      string `json:"body"`
	Timestamp string `json:"timestamp,omitempty"`
}

// FileMessage is the shape of a sendFile / receiveFile payload, as produced
// by the upload handler.
type FileMessage struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// UserPresence is the payload of userJoined and userLeft.
type UserPresence struct {
	Username string `json:"username"`
}

// Roster is the payload of updateUsers.
type Roster struct {
	Users []string `json:"roster"`
}

// ParseText reads the known fields of a text payload, tolerating anything
// malformed by returning the zero value.
func ParseText(payload json.RawMessage) TextMessage {
	var m TextMessage
	_ = json.Unmarshal(payload, &m)
	return m
}

// ParseFile reads the known fields of a file payload. The upload handler
// names the link "fileUrl"; either spelling is accepted.
func ParseFile(payload json.RawMessage) FileMessage {
	var m struct {
		FileMessage
		FileURL string `json:"fileUrl"`
	}
	_ = json.Unmarshal(payload, &m)
	if m.URL == "" {
		m.URL = m.FileURL
	}
	return m.FileMessage
}

// ReceiveMessage wraps a chat payload, unchanged, for delivery to peers.
func ReceiveMessage(payload json.RawMessage) ([]byte, error) {
	return Encode(EventReceiveMessage, payload)
}

// ReceiveFile wraps a file notice payload, unchanged, for delivery to peers.
func ReceiveFile(payload json.RawMessage) ([]byte, error) {
	return Encode(EventReceiveFile, payload)
}

// UserJoined encodes the announcement that username has joined.
func UserJoined(username string) ([]byte, error) {
	return Encode(EventUserJoined, UserPresence{Username: username})
}

// UserLeft encodes the announcement that username has left.
func UserLeft(username string) ([]byte, error) {
	return Encode(EventUserLeft, UserPresence{Username: username})
}

// UpdateUsers encodes the roster; a nil roster is sent as an empty list.
func UpdateUsers(roster []string) ([]byte, error) {
	if roster == nil {
		roster = []string{}
	}
	return Encode(EventUpdateUsers, Roster{Users: roster})
}
