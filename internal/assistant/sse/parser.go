package sse

import (
	"encoding/json"
	"strings"

	"github.com/sirupsen/logrus"
)

// dataPrefix marks payload lines; everything else in a frame is a
// protocol comment or keep-alive and is ignored.
const dataPrefix = "data:"

var knownEventTypes = map[EventType]struct{}{
	EventConversationID: {},
	EventText:           {},
	EventToolResult:     {},
	EventError:          {},
	EventDone:           {},
}

// Parser turns complete frames into typed events. Malformed payloads and
// unrecognized event types are logged and skipped rather than surfaced:
// protocol additions on the backend must not break deployed clients.
type Parser struct {
	log *logrus.Entry
}

// NewParser creates a parser logging skipped frames through log.
func NewParser(log *logrus.Entry) *Parser {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Parser{log: log}
}

// Parse extracts the data payload from one frame and decodes it into an
// Event. Returns nil when the frame carries no payload, the payload is
// not valid JSON, or its type is unknown; the stream continues either way.
func (p *Parser) Parse(frame string) *Event {
	var payload []string
	for _, line := range strings.Split(frame, "\n") {
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		payload = append(payload, strings.TrimPrefix(strings.TrimPrefix(line, dataPrefix), " "))
	}
	if len(payload) == 0 {
		return nil
	}
	data := strings.Join(payload, "\n")

	var event Event
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		p.log.WithField("payload", data).WithError(err).Debug("skipping malformed stream frame")
		return nil
	}

	if _, ok := knownEventTypes[event.Type]; !ok {
		p.log.WithField("type", event.Type).Debug("skipping unknown stream event type")
		return nil
	}

	return &event
}
