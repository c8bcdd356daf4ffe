package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hay-kot/criterio"

	"github.com/hay-kot/parley/internal/core/chat"
	"github.com/hay-kot/parley/internal/node"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Payload is the JSON body exchanged between nodes on POST /receive.
type Payload struct {
	Sender string `json:"sender,omitempty" validate:"required_without=Author"`
	// Author is accepted in place of Sender from older clients.
	Author   string `json:"author,omitempty" validate:"required_without=Sender"`
	Receiver string `json:"receiver,omitempty"`
	Text     string `json:"text" validate:"required"`
	// Timestamp is the send time. Offsets are optional; zone-less times are UTC.
	Timestamp string `json:"timestamp,omitempty"`
	ReplyTo   string `json:"reply_to,omitempty"`
}

// NewPayload builds the wire form of msg. replyTo is the sender's listen
// address and may be empty.
func NewPayload(msg chat.Message, replyTo string) Payload {
	p := Payload{
		Sender:   msg.Sender,
		Receiver: msg.Receiver,
		Text:     msg.Text,
		ReplyTo:  replyTo,
	}
	if !msg.SentAt.IsZero() {
		p.Timestamp = msg.SentAt.UTC().Format(time.RFC3339Nano)
	}
	return p
}

// Inbound converts the payload for node.Service.Receive. An unparseable
// timestamp is dropped.
func (p Payload) Inbound() node.Inbound {
	sender := p.Sender
	if sender == "" {
		sender = p.Author
	}
	return node.Inbound{
		Sender:   sender,
		Receiver: p.Receiver,
		Text:     p.Text,
		SentAt:   parseTimestamp(p.Timestamp),
		ReplyTo:  p.ReplyTo,
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// SendRequest is the body of POST /api/messages/send.
type SendRequest struct {
	Receiver string `json:"receiver" validate:"required"`
	Text     string `json:"text" validate:"required"`
}

// AddPeerRequest is the body of POST /api/peers.
type AddPeerRequest struct {
	Username string `json:"username" validate:"required"`
	Address  string `json:"address" validate:"required"`
}

// PeerView is a peer as listed by GET /api/users/online.
type PeerView struct {
	Username string      `json:"username"`
	Address  string      `json:"address,omitempty"`
	LastSeen time.Time   `json:"last_seen"`
	Status   chat.Status `json:"status"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Status       string   `json:"status"`
	Username     string   `json:"username"`
	Address      string   `json:"address,omitempty"`
	Peers        []string `json:"peers"`
	MessageCount int      `json:"message_count"`
}

// SendResponse is the body of POST /api/messages/send and POST /receive.
type SendResponse struct {
	Status    string   `json:"status"`
	ID        string   `json:"id,omitempty"`
	Delivered int      `json:"delivered,omitempty"`
	Failed    []string `json:"failed,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

var structValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates it. Errors wrap
// chat.ErrMalformedMessage; validation failures carry criterio.FieldErrors.
func decode(r io.Reader, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: decode body: %w", chat.ErrMalformedMessage, err)
	}

	if err := structValidator.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %w", chat.ErrMalformedMessage, err)
		}

		var errs criterio.FieldErrorsBuilder
		for _, fe := range verrs {
			errs = errs.Append(fe.Field(), fieldError(fe))
		}
		return fmt.Errorf("%w: %w", chat.ErrMalformedMessage, errs.ToError())
	}
	return nil
}

func fieldError(fe validator.FieldError) error {
	switch fe.Tag() {
	case "required", "required_without":
		return errors.New("is required")
	default:
		return fmt.Errorf("failed %q check", fe.Tag())
	}
}
