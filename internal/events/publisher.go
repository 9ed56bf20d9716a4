// Package events publishes recipe write events to the message queue and
// decodes them on the consuming side.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/recipebox/apiserver/internal/mq"
	"github.com/recipebox/apiserver/types"
)

// AttrEventType carries the event type so consumers can filter without
// decoding the body.
const AttrEventType = "event-type"

// Publisher sends recipe events to one channel. A Publisher without a queue
// drops events.
type Publisher struct {
	queue   *mq.MQ
	channel string
}

func NewPublisher(queue *mq.MQ, channel string) *Publisher {
	return &Publisher{queue: queue, channel: channel}
}

// Publish encodes the event as JSON and sends it.
func (p *Publisher) Publish(ctx context.Context, event types.RecipeEvent) error {
	if p == nil || p.queue == nil {
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	attrs := map[string]string{
		AttrEventType:      event.Type,
		mq.ContentTypeAttr: "application/json",
		mq.OrderingKeyAttr: OrderingKey(event.RecipeID),
	}
	if _, err := p.queue.Publish(ctx, p.channel, data, attrs); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// OrderingKey keeps every event for one recipe on the same ordered stream.
func OrderingKey(recipeID int) string {
	return "recipe-" + strconv.Itoa(recipeID)
}

// Decode parses a message produced by Publish.
func Decode(msg mq.Message) (types.RecipeEvent, error) {
	var event types.RecipeEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return types.RecipeEvent{}, fmt.Errorf("decode event %s: %w", msg.ID, err)
	}
	if event.Type == "" {
		event.Type = msg.Attributes[AttrEventType]
	}
	return event, nil
}
