// Package queue defines message payloads exchanged over the message broker
// and the background consumer that records them.
package queue

import (
    "encoding/json"
    "fmt"

    "github.com/iliyamo/rental-markup/internal/model"
)

// MarkupQueueName is the durable queue carrying markup.applied and
// markup.removed events.
const MarkupQueueName = "markup.events"

// Encode serialises a markup event for publishing.
func Encode(ev model.MarkupEvent) ([]byte, error) {
    return json.Marshal(ev)
}

// Decode parses a message body into a markup event.  Events with an
// unknown type are rejected.
func Decode(body []byte) (model.MarkupEvent, error) {
    var ev model.MarkupEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return ev, fmt.Errorf("unmarshal: %w", err)
    }
    switch ev.Type {
    case model.EventMarkupApplied, model.EventMarkupRemoved:
    default:
        return ev, fmt.Errorf("unknown event type %q", ev.Type)
    }
    return ev, nil
}

// FormatLine renders ev as a single human-friendly log line.
func FormatLine(ev model.MarkupEvent) string {
    verb := "Markup applied"
    if ev.Type == model.EventMarkupRemoved {
        verb = "Markup removed"
    }
    return fmt.Sprintf("[%s] %s | markup_id=%d | owner_user_id=%d | item=%s/%d | final=%s\n",
        ev.OccurredAt, verb, ev.MarkupID, ev.OwnerUserID, ev.MarkableType, ev.MarkableID, ev.FinalAmount.StringFixed(2))
}
