package crm

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnexpectedShape marks a response body none of an endpoint's known shapes matched.
var ErrUnexpectedShape = errors.New("unexpected response shape")

// ParseError reports which endpoint's parser rejected a body.
type ParseError struct {
	Endpoint string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("crm: parse %s response: %v", e.Endpoint, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func parseErr(endpoint string, err error) error {
	return &ParseError{Endpoint: endpoint, Err: err}
}

func objectFields(endpoint string, body []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, parseErr(endpoint, err)
	}
	if fields == nil {
		return nil, parseErr(endpoint, ErrUnexpectedShape)
	}
	return fields, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// ParseOpportunitySearch accepts {opportunities:[...]} and {data:{opportunities:[...]}}.
func ParseOpportunitySearch(body []byte) ([]Opportunity, error) {
	const endpoint = "opportunity search"
	fields, err := objectFields(endpoint, body)
	if err != nil {
		return nil, err
	}

	raw, ok := fields["opportunities"]
	if !ok || isNull(raw) {
		data, hasData := fields["data"]
		if !hasData || isNull(data) {
			return nil, parseErr(endpoint, ErrUnexpectedShape)
		}
		var nested struct {
			Opportunities json.RawMessage `json:"opportunities"`
		}
		if err := json.Unmarshal(data, &nested); err != nil || isNull(nested.Opportunities) {
			return nil, parseErr(endpoint, ErrUnexpectedShape)
		}
		raw = nested.Opportunities
	}

	var out []Opportunity
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, parseErr(endpoint, err)
	}
	return out, nil
}

// ParseConversationSearch accepts {conversations:[...]}.
func ParseConversationSearch(body []byte) ([]Conversation, error) {
	const endpoint = "conversation search"
	fields, err := objectFields(endpoint, body)
	if err != nil {
		return nil, err
	}
	raw, ok := fields["conversations"]
	if !ok {
		return nil, parseErr(endpoint, ErrUnexpectedShape)
	}
	if isNull(raw) {
		return nil, nil
	}
	var out []Conversation
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, parseErr(endpoint, err)
	}
	return out, nil
}

// ParseMessageList accepts {messages:[...]}, {messages:{messages:[...]}} and {data:[...]}.
func ParseMessageList(body []byte) ([]Message, error) {
	const endpoint = "message list"
	fields, err := objectFields(endpoint, body)
	if err != nil {
		return nil, err
	}

	raw, ok := fields["messages"]
	if !ok || isNull(raw) {
		raw, ok = fields["data"]
		if !ok {
			return nil, parseErr(endpoint, ErrUnexpectedShape)
		}
		if isNull(raw) {
			return nil, nil
		}
	}

	var list []Message
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var page struct {
		Messages []Message `json:"messages"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, parseErr(endpoint, ErrUnexpectedShape)
	}
	return page.Messages, nil
}

// ParseMessageBody accepts {message:{body}} and {body}. The body may be empty.
func ParseMessageBody(body []byte) (string, error) {
	const endpoint = "message body"
	fields, err := objectFields(endpoint, body)
	if err != nil {
		return "", err
	}

	if raw, ok := fields["message"]; ok && !isNull(raw) {
		var msg struct {
			Body string `json:"body"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			return "", parseErr(endpoint, err)
		}
		if msg.Body != "" {
			return msg.Body, nil
		}
	}
	if raw, ok := fields["body"]; ok && !isNull(raw) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", parseErr(endpoint, err)
		}
		return s, nil
	}
	if _, ok := fields["message"]; ok {
		return "", nil
	}
	return "", parseErr(endpoint, ErrUnexpectedShape)
}

// ParseNoteList accepts {notes:[...]}.
func ParseNoteList(body []byte) ([]Note, error) {
	const endpoint = "note list"
	fields, err := objectFields(endpoint, body)
	if err != nil {
		return nil, err
	}
	raw, ok := fields["notes"]
	if !ok {
		return nil, parseErr(endpoint, ErrUnexpectedShape)
	}
	if isNull(raw) {
		return nil, nil
	}
	var out []Note
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, parseErr(endpoint, err)
	}
	return out, nil
}

// ParseSendMessage accepts any object and returns its messageId, if present.
func ParseSendMessage(body []byte) (string, error) {
	const endpoint = "send message"
	if len(body) == 0 {
		return "", nil
	}
	fields, err := objectFields(endpoint, body)
	if err != nil {
		return "", err
	}
	var id string
	if raw, ok := fields["messageId"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &id); err != nil {
			return "", parseErr(endpoint, err)
		}
	}
	return id, nil
}
