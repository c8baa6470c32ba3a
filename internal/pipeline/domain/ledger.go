package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Channel qualifies a ledger entry for one action.
type Channel string

const (
	ChannelDefault  Channel = ""
	ChannelSMS      Channel = "sms"
	ChannelEmail    Channel = "email"
	ChannelMove     Channel = "move"
	ChannelNote     Channel = "note"
	ChannelCallNote Channel = "callnote"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelDefault, ChannelSMS, ChannelEmail, ChannelMove, ChannelNote, ChannelCallNote:
		return true
	}
	return false
}

// ErrInvalidLedgerKey is returned for keys that are not "<id>" or "<id>_<channel>".
var ErrInvalidLedgerKey = errors.New("invalid ledger key")

// LedgerKey identifies one operator action on one dashboard item.
// Its wire form is "5" or "5_sms".
type LedgerKey struct {
	ActionID int
	Channel  Channel
}

func (k LedgerKey) String() string {
	if k.Channel == ChannelDefault {
		return strconv.Itoa(k.ActionID)
	}
	return strconv.Itoa(k.ActionID) + "_" + string(k.Channel)
}

// ParseLedgerKey parses the wire form.
func ParseLedgerKey(s string) (LedgerKey, error) {
	idPart, channel, qualified := strings.Cut(s, "_")
	id, err := strconv.Atoi(idPart)
	if err != nil || id < 1 {
		return LedgerKey{}, fmt.Errorf("%w: %q", ErrInvalidLedgerKey, s)
	}
	key := LedgerKey{ActionID: id, Channel: Channel(channel)}
	if qualified && key.Channel == ChannelDefault {
		return LedgerKey{}, fmt.Errorf("%w: empty channel in %q", ErrInvalidLedgerKey, s)
	}
	if !key.Channel.Valid() {
		return LedgerKey{}, fmt.Errorf("%w: unknown channel in %q", ErrInvalidLedgerKey, s)
	}
	return key, nil
}

func (k LedgerKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *LedgerKey) UnmarshalText(b []byte) error {
	parsed, err := ParseLedgerKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// LedgerStatus is what happened to an action.
type LedgerStatus string

const (
	LedgerSent      LedgerStatus = "sent"
	LedgerMoved     LedgerStatus = "moved"
	LedgerNoted     LedgerStatus = "noted"
	LedgerDismissed LedgerStatus = "dismissed"
)

// LedgerEntry is one recorded operator action. TS is epoch milliseconds.
type LedgerEntry struct {
	Status LedgerStatus `json:"status"`
	TS     int64        `json:"ts"`
}

// Ledger is the sent-status document. It is reset when a run completes.
type Ledger map[LedgerKey]LedgerEntry

// Merge overlays other onto l, returning a new ledger.
func (l Ledger) Merge(other Ledger) Ledger {
	out := make(Ledger, len(l)+len(other))
	for k, v := range l {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}
