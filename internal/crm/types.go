package crm

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Message types the CRM uses for outbound channels.
const (
	MessageTypeCall  = "TYPE_CALL"
	MessageTypeSMS   = "TYPE_SMS"
	MessageTypeEmail = "TYPE_EMAIL"

	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Contact is the contact embedded in an opportunity.
type Contact struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// FieldFile is one uploaded file on a file-list custom field.
type FieldFile struct {
	URL string `json:"url"`
}

// CustomField is a raw custom field value keyed by field id.
type CustomField struct {
	ID               string      `json:"id"`
	FieldValueString string      `json:"fieldValueString"`
	FieldValueFiles  []FieldFile `json:"fieldValueFiles"`
}

// Opportunity is one entry from the opportunity search.
type Opportunity struct {
	ID                 string        `json:"id"`
	Contact            Contact       `json:"contact"`
	PipelineStageID    string        `json:"pipelineStageId"`
	CreatedAt          Timestamp     `json:"createdAt"`
	LastStageChangeAt  Timestamp     `json:"lastStageChangeAt"`
	LastStatusChangeAt Timestamp     `json:"lastStatusChangeAt"`
	Source             string        `json:"source"`
	MonetaryValue      float64       `json:"monetaryValue"`
	CustomFields       []CustomField `json:"customFields"`
}

// StageChangedAt returns lastStageChangeAt, then lastStatusChangeAt, then createdAt.
func (o Opportunity) StageChangedAt() Timestamp {
	switch {
	case !o.LastStageChangeAt.IsZero():
		return o.LastStageChangeAt
	case !o.LastStatusChangeAt.IsZero():
		return o.LastStatusChangeAt
	default:
		return o.CreatedAt
	}
}

// Conversation is one entry from the conversation search.
type Conversation struct {
	ID                        string    `json:"id"`
	UnreadCount               int       `json:"unreadCount"`
	LastMessageDirection      string    `json:"lastMessageDirection"`
	LastMessageDate           Timestamp `json:"lastMessageDate"`
	LastMessageType           string    `json:"lastMessageType"`
	LastOutboundMessageAction string    `json:"lastOutboundMessageAction"`
	LastManualMessageDate     Timestamp `json:"lastManualMessageDate"`
}

// Message is one entry of a conversation's message listing.
type Message struct {
	ID          string        `json:"id"`
	Direction   string        `json:"direction"`
	MessageType string        `json:"messageType"`
	Body        string        `json:"body"`
	Message     string        `json:"message"`
	DateAdded   Timestamp     `json:"dateAdded"`
	CreatedAt   Timestamp     `json:"createdAt"`
	Meta        metaDirection `json:"meta"`
}

// ResolvedDirection is the top-level direction, or the direction of the first
// meta entry that carries one.
func (m Message) ResolvedDirection() string {
	if m.Direction != "" {
		return m.Direction
	}
	return string(m.Meta)
}

// Sent returns dateAdded, falling back to createdAt.
func (m Message) Sent() Timestamp {
	if !m.DateAdded.IsZero() {
		return m.DateAdded
	}
	return m.CreatedAt
}

// Text returns body, falling back to message.
func (m Message) Text() string {
	if m.Body != "" {
		return m.Body
	}
	return m.Message
}

// Note is an internal contact note.
type Note struct {
	Body      string `json:"body"`
	DateAdded string `json:"dateAdded"`
}

// SendMessageRequest is the body of POST /conversations/messages.
type SendMessageRequest struct {
	Type      string `json:"type"`
	ContactID string `json:"contactId"`
	Subject   string `json:"subject,omitempty"`
	HTML      string `json:"html,omitempty"`
	Message   string `json:"message"`
	EmailFrom string `json:"emailFrom,omitempty"`
}

// metaDirection keeps the direction of the first meta entry, in document order.
type metaDirection string

func (d *metaDirection) UnmarshalJSON(b []byte) error {
	*d = ""
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil
	}
	for dec.More() {
		if _, err := dec.Token(); err != nil {
			return err
		}
		var entry struct {
			Direction *string `json:"direction"`
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		if json.Unmarshal(raw, &entry) != nil || entry.Direction == nil {
			continue
		}
		*d = metaDirection(*entry.Direction)
		return nil
	}
	return nil
}

// Timestamp accepts ISO-8601 strings and epoch numbers. Numbers above 1e12
// are milliseconds, anything else seconds. Unparseable values are zero.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	t.Time = time.Time{}
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		return nil
	}
	if s[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		t.Time = ParseTimestamp(str)
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	t.Time = FromEpoch(n)
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// Ptr returns nil for a zero timestamp.
func (t Timestamp) Ptr() *time.Time {
	if t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}

// ParseTimestamp parses an ISO string, or a numeric string as an epoch.
func ParseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts
		}
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return FromEpoch(n)
	}
	return time.Time{}
}

// FromEpoch converts epoch seconds or milliseconds.
func FromEpoch(n float64) time.Time {
	if n <= 0 {
		return time.Time{}
	}
	if n > 1e12 {
		return time.UnixMilli(int64(n)).UTC()
	}
	return time.Unix(int64(n), 0).UTC()
}
