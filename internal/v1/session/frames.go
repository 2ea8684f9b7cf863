package session

import "strings"

// Text control frames understood from clients. Anything that matches none of
// these prefixes and does not look like JSON is treated as opaque audio.
const (
	framePrefixRTS    = "RTS"
	frameStop         = "STOP"
	frameListen       = "LISTEN"
	frameSkip         = "SKIP"
	frameQueueStatus  = "QUEUE_STATUS"
	framePrefixFormat = "FORMAT "
)

// Text control frames sent to legacy clients. JSON clients receive the
// equivalent {"type": ...} messages instead.
const (
	frameClear         = "CLEAR"
	framePrefixFrom    = "FROM"
	frameCTS           = "CTS"
	frameNeedRTS       = "NEED_RTS"
	framePrefixRecMime = "REC_MIME "
)

type frameKind int

const (
	kindRTS frameKind = iota
	kindStop
	kindListen
	kindSkip
	kindQueueStatus
	kindFormat
	kindJSON
	kindAudio
)

func (k frameKind) String() string {
	switch k {
	case kindRTS:
		return "rts"
	case kindStop:
		return "stop"
	case kindListen:
		return "listen"
	case kindSkip:
		return "skip"
	case kindQueueStatus:
		return "queue_status"
	case kindFormat:
		return "format"
	case kindJSON:
		return "json"
	default:
		return "audio"
	}
}

// classifyText decides what a text frame means. Prefix checks run before the
// JSON check so a hypothetical "{"-leading audio codec never parses as JSON,
// and unknown text falls through to the audio path rather than erroring.
func classifyText(s string) frameKind {
	switch {
	case strings.HasPrefix(s, framePrefixRTS):
		return kindRTS
	case s == frameStop:
		return kindStop
	case s == frameListen:
		return kindListen
	case s == frameSkip:
		return kindSkip
	case s == frameQueueStatus:
		return kindQueueStatus
	case strings.HasPrefix(s, framePrefixFormat):
		return kindFormat
	case strings.HasPrefix(s, "{"):
		return kindJSON
	default:
		return kindAudio
	}
}

// JSON message types accepted from clients.
const (
	msgTypeReady              = "ready"
	msgTypeOffer              = "offer"
	msgTypeAnswer             = "answer"
	msgTypeICECandidate       = "ice-candidate"
	msgTypeStop               = "stop"
	msgTypeKickUser           = "kick-user"
	msgTypeReorderUser        = "reorder-user"
	msgTypeMoveUserToPosition = "move-user-to-position"
	msgTypeSetQueueSortMode   = "set-queue-sort-mode"
	msgTypeUpdatePriority     = "update-priority"
)

// inboundMessage is the superset of fields across all client JSON messages.
// Unknown types are ignored; relayed signaling (offer/answer/ice-candidate)
// is forwarded from the raw bytes so SDP and candidate payloads pass through
// untouched.
type inboundMessage struct {
	Type      string `json:"type"`
	Username  string `json:"username"`
	Priority  *int   `json:"priority"`
	Direction string `json:"direction"`
	Position  *int   `json:"position"`
	Mode      string `json:"mode"`
}

// controlMessage is the JSON form of a simple control frame.
type controlMessage struct {
	Type string `json:"type"`
}

// fromMessage announces the active speaker to the listener.
type fromMessage struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// errorMessage is a per-operation failure ack sent back to the requesting
// instructor connection only.
type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// queueEntry is one waiting (non-speaking) queue member in a snapshot.
type queueEntry struct {
	Username string `json:"username"`
	Priority int    `json:"priority"`
	Position int    `json:"position"`
}

// queueSnapshot is the full queue state broadcast to instructor connections
// as "queue-update" and returned to QUEUE_STATUS requesters as
// "queue-status". Usernames are reported without the random key suffix, and
// the current speaker is carried separately from the waiting queue.
type queueSnapshot struct {
	Type                   string       `json:"type"`
	Queue                  []queueEntry `json:"queue"`
	CurrentSpeaker         *string      `json:"currentSpeaker"`
	CurrentSpeakerPriority *int         `json:"currentSpeakerPriority"`
	QueueSize              int          `json:"queueSize"`
	SortMode               string       `json:"sortMode"`
}
