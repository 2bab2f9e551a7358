package relay

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Inbound and outbound frame types.
const (
	TypeJoin   = "join"
	TypeMsg    = "msg"
	TypeJoined = "joined"
	TypeError  = "error"
	TypeSystem = "system"
)

// Error reasons carried by TypeError frames.
const (
	ReasonInvalidRoom = "invalid_room"
	ReasonRoomFull    = "room_full"
)

const (
	MaxRoomLength = 64
	MaxNameLength = 32
	MaxTextLength = 2000
	DefaultName   = "Anonymous"
)

// inbound is the union of every frame a client may send. Fields that do not
// apply to a type are left empty.
type inbound struct {
	Type string
	Room string
	Name string
	Text string
}

// decodeInbound parses a client frame. Only the exact lowercase keys are
// recognised; any of them carrying a non-string value rejects the frame.
func decodeInbound(raw []byte) (inbound, error) {
	var in inbound
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return in, errors.Wrap(err, "decoding frame")
	}

	targets := map[string]*string{
		"type": &in.Type,
		"room": &in.Room,
		"name": &in.Name,
		"text": &in.Text,
	}
	for key, dst := range targets {
		value, ok := fields[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(value, dst); err != nil {
			return inbound{}, errors.Wrapf(err, "decoding %q", key)
		}
	}
	return in, nil
}

// JoinedMessage acknowledges a successful join.
type JoinedMessage struct {
	Type string `json:"type"`
	Room string `json:"room"`
	You  string `json:"you"`
}

// ErrorMessage rejects a request with one of the Reason constants.
type ErrorMessage struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// SystemMessage is a presence notice.
type SystemMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ChatMessage is a relayed chat line. TS is epoch milliseconds taken on the
// server when the line was accepted.
type ChatMessage struct {
	Type string `json:"type"`
	Name string `json:"name"`
	Text string `json:"text"`
	TS   int64  `json:"ts"`
}

func newJoined(room, you string) JoinedMessage {
	return JoinedMessage{Type: TypeJoined, Room: room, You: you}
}

func newError(reason string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Reason: reason}
}

func newSystem(text string) SystemMessage {
	return SystemMessage{Type: TypeSystem, Text: text}
}

func joinedNotice(name string) SystemMessage {
	return newSystem(name + " joined the room")
}

func leftNotice(name string) SystemMessage {
	return newSystem(name + " left the room")
}

func encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// NormalizeRoom applies the room id length limit. An empty result is not a
// valid room.
func NormalizeRoom(room string) string {
	return truncate(room, MaxRoomLength)
}

// NormalizeName trims and truncates a display name, falling back to
// DefaultName.
func NormalizeName(name string) string {
	name = truncate(strings.TrimSpace(name), MaxNameLength)
	if name == "" {
		return DefaultName
	}
	return name
}

// NormalizeText trims a chat line and reports whether it may be relayed.
func NormalizeText(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" || utf8.RuneCountInString(text) > MaxTextLength {
		return "", false
	}
	return text, true
}
