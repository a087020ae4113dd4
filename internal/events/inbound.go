package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"condo-chat/internal/errs"
	"condo-chat/internal/models"
)

// ErrMalformed marks a payload that is not valid JSON for its routing key.
var ErrMalformed = errors.New("malformed event payload")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Kind is the closed set of inbound event variants.
type Kind int

const (
	KindUnhandled Kind = iota
	KindReceived
	KindRead
	KindDelivered
)

func (k Kind) String() string {
	switch k {
	case KindReceived:
		return "received"
	case KindRead:
		return "read"
	case KindDelivered:
		return "delivered"
	default:
		return "unhandled"
	}
}

// Inbound is one decoded delivery. Exactly one payload is set for the
// handled kinds.
type Inbound struct {
	Kind       Kind
	RoutingKey string
	// DeliveryID is the transport message id, empty when the producer set none.
	DeliveryID string

	Received  *models.MessageReceivedEvent
	Read      *models.MessageReadEvent
	Delivered *models.MessageDeliveredEvent
}

// Decode maps a routing key and body onto an Inbound. Unknown routing keys
// decode to KindUnhandled without looking at the body. JSON errors wrap
// ErrMalformed; field validation errors are errs.KindValidation.
func Decode(routingKey string, body []byte, deliveryID string) (Inbound, error) {
	in := Inbound{RoutingKey: routingKey, DeliveryID: deliveryID}

	var target any
	switch routingKey {
	case models.RoutingMessageReceived:
		in.Kind, in.Received = KindReceived, &models.MessageReceivedEvent{}
		target = in.Received
	case models.RoutingMessageRead:
		in.Kind, in.Read = KindRead, &models.MessageReadEvent{}
		target = in.Read
	case models.RoutingMessageDelivered:
		in.Kind, in.Delivered = KindDelivered, &models.MessageDeliveredEvent{}
		target = in.Delivered
	default:
		return in, nil
	}

	if err := json.Unmarshal(body, target); err != nil {
		return in, fmt.Errorf("%w: %s: %v", ErrMalformed, routingKey, err)
	}
	if err := validate.Struct(target); err != nil {
		return in, errs.E(errs.KindValidation, "invalid "+routingKey+" event", err)
	}
	return in, nil
}
