// Package conversation looks up each lead's CRM conversation, message history
// and notes, and condenses them into domain.ConversationFacts.
package conversation

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"lead_triage_backend/internal/crm"
	"lead_triage_backend/internal/pipeline/domain"
	"lead_triage_backend/platform/logger"
	"lead_triage_backend/platform/sanitize"

	"golang.org/x/sync/errgroup"
)

const (
	transcriptLimit = 20
	maxEmailFetches = 10
	maxEntryRunes   = 500
)

var channelNames = map[string]string{
	crm.MessageTypeEmail: "email",
	crm.MessageTypeSMS:   "sms",
	crm.MessageTypeCall:  "call",
}

// CRM is the subset of the CRM client used for conversation lookups.
type CRM interface {
	SearchConversations(ctx context.Context, contactID, locationID string) ([]crm.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]crm.Message, error)
	GetMessageBody(ctx context.Context, messageID string) (string, error)
	ListNotes(ctx context.Context, contactID string) ([]crm.Note, error)
}

// Service performs per-lead conversation lookups.
type Service struct {
	crm        CRM
	locationID string
	log        *logger.Logger
}

// New creates a conversation service scoped to one CRM location.
func New(client CRM, locationID string, log *logger.Logger) *Service {
	return &Service{crm: client, locationID: locationID, log: log}
}

// Enrich looks up every lead concurrently. Each CRM call passes through gate.
// Leads without a contact id are skipped; a failed lookup is recorded as
// NoConversation. The only error returned is ctx's.
func (s *Service) Enrich(ctx context.Context, gate *Gate, leads []domain.Lead) (domain.ConversationMap, error) {
	out := make(domain.ConversationMap, len(leads))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, lead := range leads {
		if lead.ContactID == "" {
			continue
		}
		g.Go(func() error {
			outcome := s.Lookup(gctx, gate, lead)
			mu.Lock()
			out[lead.ContactID] = outcome
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Lookup returns the conversation outcome for one lead.
func (s *Service) Lookup(ctx context.Context, gate *Gate, lead domain.Lead) domain.ConversationOutcome {
	outcome, err := s.lookup(ctx, gate, lead)
	if err != nil {
		s.log.Warn("conversation: lookup failed", "contactId", lead.ContactID, "error", err)
		return domain.NoConversation()
	}
	return outcome
}

func (s *Service) lookup(ctx context.Context, gate *Gate, lead domain.Lead) (domain.ConversationOutcome, error) {
	var convs []crm.Conversation
	err := gate.Do(ctx, func(ctx context.Context) error {
		var err error
		convs, err = s.crm.SearchConversations(ctx, lead.ContactID, s.locationID)
		return err
	})
	if err != nil {
		return domain.ConversationOutcome{}, err
	}

	wantNotes := lead.Stage != domain.StageNewLead

	if len(convs) == 0 {
		if !wantNotes {
			return domain.NoConversation(), nil
		}
		notes := s.notes(ctx, gate, lead.ContactID)
		if len(notes) == 0 {
			return domain.NoConversation(), nil
		}
		return domain.FoundConversation(domain.ConversationFacts{
			Notes:    notes,
			Messages: []domain.TranscriptEntry{},
		}), nil
	}

	conv := convs[0]
	facts := domain.ConversationFacts{
		UnreadCount:               conv.UnreadCount,
		LastMessageDirection:      conv.LastMessageDirection,
		LastMessageDate:           conv.LastMessageDate.Ptr(),
		LastMessageType:           conv.LastMessageType,
		LastOutboundMessageAction: conv.LastOutboundMessageAction,
		LastManualMessageDate:     conv.LastManualMessageDate.Ptr(),
		ConversationID:            conv.ID,
		Notes:                     []domain.Note{},
		Messages:                  []domain.TranscriptEntry{},
	}

	if conv.ID != "" {
		s.summarize(ctx, gate, conv.ID, &facts)
	}
	if wantNotes {
		facts.Notes = s.notes(ctx, gate, lead.ContactID)
	}
	return domain.FoundConversation(facts), nil
}

// summarize fills the outbound count, channel dates and transcript. A failed
// listing leaves them empty.
func (s *Service) summarize(ctx context.Context, gate *Gate, conversationID string, facts *domain.ConversationFacts) {
	var msgs []crm.Message
	err := gate.Do(ctx, func(ctx context.Context) error {
		var err error
		msgs, err = s.crm.ListMessages(ctx, conversationID)
		return err
	})
	if err != nil {
		s.log.Warn("conversation: message listing failed", "conversationId", conversationID, "error", err)
		return
	}

	for _, m := range msgs {
		if m.ResolvedDirection() != crm.DirectionOutbound {
			continue
		}
		facts.OutboundCount++

		var slot **time.Time
		switch m.MessageType {
		case crm.MessageTypeCall:
			slot = &facts.LastOutboundCallDate
		case crm.MessageTypeSMS:
			slot = &facts.LastOutboundSMSDate
		case crm.MessageTypeEmail:
			slot = &facts.LastOutboundEmailDate
		default:
			continue
		}
		sent := m.Sent()
		if sent.IsZero() {
			continue
		}
		if *slot == nil || sent.After(**slot) {
			*slot = sent.Ptr()
		}
	}

	facts.Messages = s.transcript(ctx, gate, msgs)
}

func (s *Service) transcript(ctx context.Context, gate *Gate, msgs []crm.Message) []domain.TranscriptEntry {
	entries := make([]domain.TranscriptEntry, 0, min(len(msgs), transcriptLimit))
	emailFetches := 0

	for _, m := range msgs[:min(len(msgs), transcriptLimit)] {
		var text string
		if m.MessageType == crm.MessageTypeEmail && emailFetches < maxEmailFetches {
			emailFetches++
			if m.ID != "" {
				text = s.emailBody(ctx, gate, m.ID)
			}
		} else {
			text = m.Text()
		}

		text = sanitize.Truncate(text, maxEntryRunes)
		if text == "" {
			continue
		}

		direction := m.ResolvedDirection()
		if direction == "" {
			direction = "unknown"
		}
		channel, ok := channelNames[m.MessageType]
		if !ok {
			channel = m.MessageType
		}
		var date string
		if sent := m.Sent(); !sent.IsZero() {
			date = sent.UTC().Format(time.RFC3339)
		}

		entries = append(entries, domain.TranscriptEntry{
			Direction: direction,
			Channel:   channel,
			Body:      text,
			Date:      date,
		})
	}
	return entries
}

// emailBody fetches and cleans a full email body; failures yield "".
func (s *Service) emailBody(ctx context.Context, gate *Gate, messageID string) string {
	var raw string
	err := gate.Do(ctx, func(ctx context.Context) error {
		var err error
		raw, err = s.crm.GetMessageBody(ctx, messageID)
		return err
	})
	if err != nil {
		s.log.Debug("conversation: email body fetch failed", "messageId", messageID, "error", err)
		return ""
	}
	if raw == "" {
		return ""
	}
	return sanitize.EmailText(raw)
}

// notes returns the contact's notes newest first; failures yield an empty list.
func (s *Service) notes(ctx context.Context, gate *Gate, contactID string) []domain.Note {
	var raw []crm.Note
	err := gate.Do(ctx, func(ctx context.Context) error {
		var err error
		raw, err = s.crm.ListNotes(ctx, contactID)
		return err
	})
	if err != nil {
		s.log.Warn("conversation: note listing failed", "contactId", contactID, "error", err)
		return []domain.Note{}
	}

	notes := make([]domain.Note, 0, len(raw))
	for _, n := range raw {
		notes = append(notes, domain.Note{Body: n.Body, DateAdded: n.DateAdded})
	}
	slices.SortStableFunc(notes, func(a, b domain.Note) int {
		return strings.Compare(b.DateAdded, a.DateAdded)
	})
	return notes
}
