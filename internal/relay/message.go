package relay

import (
	"time"

	"github.com/google/uuid"
)

// Attachment is a file attached to a source message, forwarded by reference.
type Attachment struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// InboundMessage is one message received from the source platform.
// It is immutable once constructed.
type InboundMessage struct {
	ID          string
	ChannelID   string
	Author      string
	Content     string
	Attachments []Attachment
	ReceivedAt  time.Time
}

// PayloadKind tags the destination message type of an OutboundPayload.
type PayloadKind string

const (
	// KindText is a plain text webhook message.
	KindText PayloadKind = "text"
)

// OutboundPayload is one destination webhook message produced from an
// InboundMessage. A single message may yield several payloads when its
// formatted content exceeds the destination's size limit.
type OutboundPayload struct {
	Kind PayloadKind
	Text string
}

// TaskStatus tracks a DeliveryTask through its lifecycle:
// Pending -> InFlight -> {Delivered | Retrying -> InFlight | DeadLettered}.
type TaskStatus string

const (
	StatusPending      TaskStatus = "pending"
	StatusInFlight     TaskStatus = "in_flight"
	StatusDelivered    TaskStatus = "delivered"
	StatusRetrying     TaskStatus = "retrying"
	StatusDeadLettered TaskStatus = "dead_lettered"
)

// DeliveryTask wraps one OutboundPayload for queueing and delivery.
// After creation it is owned exclusively by the queue/consumer pair;
// no other component mutates it.
type DeliveryTask struct {
	ID        string          `json:"id"`
	MessageID string          `json:"message_id"`
	ChannelID string          `json:"channel_id"`
	Payload   OutboundPayload `json:"payload"`
	// Seq is the payload's position within its originating message.
	Seq         int        `json:"seq"`
	Status      TaskStatus `json:"status"`
	Attempts    int        `json:"attempts"`
	CreatedAt   time.Time  `json:"created_at"`
	NextRetryAt time.Time  `json:"next_retry_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// NewDeliveryTask creates a pending task with a generated UUID for one
// payload of the given message.
func NewDeliveryTask(msg *InboundMessage, payload OutboundPayload, seq int) *DeliveryTask {
	return &DeliveryTask{
		ID:        uuid.New().String(),
		MessageID: msg.ID,
		ChannelID: msg.ChannelID,
		Payload:   payload,
		Seq:       seq,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
}
