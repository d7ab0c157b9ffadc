package appkafka

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

type EventType string

const (
	EventPostCreated  EventType = "post_created"
	EventPostEdited   EventType = "post_edited"
	EventCommentAdded EventType = "comment_added"
	EventFollow       EventType = "follow"
	EventUnfollow     EventType = "unfollow"
)

// Event describes something a user did. Target is the user the action was
// aimed at: the post author for comments, the followed author for follows,
// the actor themselves for post events.
type Event struct {
	ID       string    `json:"id"`
	Type     EventType `json:"type"`
	ActorID  int64     `json:"actor_id"`
	Actor    string    `json:"actor"`
	TargetID int64     `json:"target_id"`
	Target   string    `json:"target"`
	PostID   int64     `json:"post_id,omitempty"`
	Created  time.Time `json:"created"`
}

// Publish serializes ev and writes it keyed by the actor, filling in ID and
// Created when unset.
func Publish(w KafkaWriter, ev Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Created.IsZero() {
		ev.Created = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return w.WriteMessages(kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.ActorID, 10)),
		Value: data,
	})
}

// Decode parses a message value produced by Publish.
func Decode(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, err
	}
	if ev.Type == "" || ev.ActorID == 0 {
		return Event{}, fmt.Errorf("incomplete event %q", ev.ID)
	}
	return ev, nil
}

// NopWriter drops every message. Used when no broker is configured.
type NopWriter struct{}

func (NopWriter) WriteMessages(messages ...kafka.Message) error { return nil }

func (NopWriter) Close() error { return nil }
