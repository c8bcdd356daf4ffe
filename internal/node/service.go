// Package node wires the chat stores and a transport into a running parley
// node: sending, receiving, history and presence.
package node

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hay-kot/parley/internal/core/chat"
	"github.com/hay-kot/parley/internal/core/validate"
)

const (
	DefaultStoreTimeout    = 5 * time.Second
	DefaultDeliveryTimeout = 5 * time.Second
)

// Transport delivers a message to the node listening at address.
type Transport interface {
	Deliver(ctx context.Context, address string, msg chat.Message) error
}

// Options configures a Service.
type Options struct {
	// Username is the local identity.
	Username string
	// Address is the advertised listen address of this node. Optional.
	Address         string
	PresenceWindow  time.Duration
	StoreTimeout    time.Duration
	DeliveryTimeout time.Duration
}

// Inbound is a message received from another node.
type Inbound struct {
	Sender   string
	Receiver string
	Text     string
	SentAt   time.Time
	// ReplyTo is the listen address of the sending node, when it told us.
	ReplyTo string
}

// DeliveryFailure names a peer a broadcast could not reach.
type DeliveryFailure struct {
	Peer string
	Err  error
}

// SendAllResult summarises a SendToAll.
type SendAllResult struct {
	Delivered int
	Failed    []DeliveryFailure
}

// FailedPeers returns the usernames in Failed.
func (r SendAllResult) FailedPeers() []string {
	names := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		names = append(names, f.Peer)
	}
	return names
}

// Service implements the chat operations of a node.
type Service struct {
	messages  chat.MessageStore
	peers     chat.PeerDirectory
	transport Transport
	presence  *Presence
	self      string

	storeTimeout    time.Duration
	deliveryTimeout time.Duration

	log zerolog.Logger
}

// New creates a Service. Zero timeouts fall back to the defaults.
func New(messages chat.MessageStore, peers chat.PeerDirectory, transport Transport, opts Options, log zerolog.Logger) *Service {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = DefaultDeliveryTimeout
	}

	return &Service{
		messages:        messages,
		peers:           peers,
		transport:       transport,
		presence:        NewPresence(peers, opts.Username, opts.Address, opts.PresenceWindow),
		self:            opts.Username,
		storeTimeout:    opts.StoreTimeout,
		deliveryTimeout: opts.DeliveryTimeout,
		log:             log,
	}
}

// Self returns the local username.
func (s *Service) Self() string {
	return s.self
}

// Presence returns the presence tracker of the local identity.
func (s *Service) Presence() *Presence {
	return s.presence
}

// Send stores a message and delivers it to receiver. The receiver is resolved
// before anything is written, so an unknown peer leaves no trace. When
// delivery fails the stored ID is returned with an error wrapping
// chat.ErrDeliveryFailed. Messages to self or to chat.Broadcast stay local.
func (s *Service) Send(ctx context.Context, sender, receiver, text string, now time.Time) (string, error) {
	msg := chat.Message{Sender: sender, Receiver: receiver, Text: text, SentAt: now, ReceivedAt: now}
	if err := msg.Validate(); err != nil {
		return "", err
	}
	if strings.TrimSpace(receiver) == "" {
		return "", fmt.Errorf("%w: receiver is required", chat.ErrMalformedMessage)
	}

	remote := receiver != s.self && !msg.IsBroadcast()

	var address string
	if remote {
		var err error
		address, err = s.resolve(ctx, receiver)
		if err != nil {
			return "", err
		}
	}

	id, err := s.appendMessage(ctx, msg)
	if err != nil {
		return "", err
	}
	msg.ID = id

	if !remote {
		return id, nil
	}

	dctx, cancel := context.WithTimeout(ctx, s.deliveryTimeout)
	defer cancel()

	if err := s.transport.Deliver(dctx, address, msg); err != nil {
		s.log.Warn().Err(err).Str("receiver", receiver).Str("address", address).Str("id", id).Msg("delivery failed")
		return id, fmt.Errorf("%w: %s: %w", chat.ErrDeliveryFailed, receiver, err)
	}

	s.log.Debug().Str("receiver", receiver).Str("id", id).Msg("message delivered")
	s.touch(ctx, receiver, now)
	return id, nil
}

// SendToAll sends text to every online peer concurrently. Individual delivery
// failures are reported in the result; only a failure to list peers is
// returned as an error.
func (s *Service) SendToAll(ctx context.Context, sender, text string, now time.Time) (SendAllResult, error) {
	if err := (chat.Message{Sender: sender, Text: text}).Validate(); err != nil {
		return SendAllResult{}, err
	}

	online, err := s.OnlinePeers(ctx, now)
	if err != nil {
		return SendAllResult{}, err
	}

	errs := make([]error, len(online))
	var wg sync.WaitGroup
	for i, p := range online {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.Send(ctx, sender, p.Username, text, now)
		}()
	}
	wg.Wait()

	var res SendAllResult
	for i, p := range online {
		if errs[i] != nil {
			res.Failed = append(res.Failed, DeliveryFailure{Peer: p.Username, Err: errs[i]})
			continue
		}
		res.Delivered++
	}

	s.log.Info().Int("delivered", res.Delivered).Strs("failed", res.FailedPeers()).Msg("broadcast sent")
	return res, nil
}

// Receive stores a message delivered by another node. A missing receiver
// means the message is for this node. The sender's directory entry is
// refreshed; presence failures are logged and never fail the receive.
func (s *Service) Receive(ctx context.Context, in Inbound, now time.Time) (string, error) {
	msg := chat.Message{
		Sender:     in.Sender,
		Receiver:   in.Receiver,
		Text:       in.Text,
		SentAt:     in.SentAt,
		ReceivedAt: now,
	}
	if err := msg.Validate(); err != nil {
		return "", err
	}
	if strings.TrimSpace(msg.Receiver) == "" {
		msg.Receiver = s.self
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = now
	}

	id, err := s.appendMessage(ctx, msg)
	if err != nil {
		return "", err
	}

	s.log.Debug().Str("sender", msg.Sender).Str("id", id).Msg("message received")

	if msg.Sender != s.self {
		s.notePeer(ctx, msg.Sender, in.ReplyTo, now)
	}
	return id, nil
}

// History returns up to limit messages of participant, oldest first.
func (s *Service) History(ctx context.Context, participant string, limit int) ([]chat.Message, error) {
	sctx, cancel := s.storeContext(ctx)
	defer cancel()

	msgs, err := s.messages.Query(sctx, participant, limit)
	if err != nil {
		return nil, storageError("query history", err)
	}
	slices.Reverse(msgs)
	return msgs, nil
}

// DrainUnread returns the unread messages of participant, oldest first, and
// marks each one read. When an acknowledgement fails the messages already
// acknowledged are returned together with the error.
func (s *Service) DrainUnread(ctx context.Context, participant string) ([]chat.Message, error) {
	sctx, cancel := s.storeContext(ctx)
	defer cancel()

	unread, err := s.messages.UnreadFor(sctx, participant)
	if err != nil {
		return nil, storageError("list unread", err)
	}

	acked := make([]chat.Message, 0, len(unread))
	for _, m := range unread {
		if err := s.messages.MarkRead(sctx, m.ID); err != nil {
			return acked, storageError("mark read", err)
		}
		m.Read = true
		acked = append(acked, m)
	}
	return acked, nil
}

// UnreadCount returns how many messages wait unread for participant without
// acknowledging them.
func (s *Service) UnreadCount(ctx context.Context, participant string) (int, error) {
	sctx, cancel := s.storeContext(ctx)
	defer cancel()

	unread, err := s.messages.UnreadFor(sctx, participant)
	if err != nil {
		return 0, storageError("list unread", err)
	}
	return len(unread), nil
}

// OnlinePeers lists the peers online at now, excluding self.
func (s *Service) OnlinePeers(ctx context.Context, now time.Time) ([]chat.Peer, error) {
	sctx, cancel := s.storeContext(ctx)
	defer cancel()

	peers, err := s.peers.ListOnline(sctx, now, s.presence.Window(), s.self)
	if err != nil {
		return nil, storageError("list online peers", err)
	}
	return peers, nil
}

// Peers lists every known peer.
func (s *Service) Peers(ctx context.Context) ([]chat.Peer, error) {
	sctx, cancel := s.storeContext(ctx)
	defer cancel()

	peers, err := s.peers.List(sctx)
	if err != nil {
		return nil, storageError("list peers", err)
	}
	return peers, nil
}

// AddPeer registers a peer address by hand.
func (s *Service) AddPeer(ctx context.Context, username, address string, now time.Time) error {
	if err := validate.Username(username); err != nil {
		return err
	}

	sctx, cancel := s.storeContext(ctx)
	defer cancel()

	if err := s.peers.Upsert(sctx, username, address, now); err != nil {
		return storageError("add peer", err)
	}
	s.log.Info().Str("peer", username).Str("address", address).Msg("peer added")
	return nil
}

// MessageCount returns how many messages the local identity exchanged.
func (s *Service) MessageCount(ctx context.Context) (int, error) {
	sctx, cancel := s.storeContext(ctx)
	defer cancel()

	n, err := s.messages.Count(sctx, s.self)
	if err != nil {
		return 0, storageError("count messages", err)
	}
	return n, nil
}

func (s *Service) resolve(ctx context.Context, username string) (string, error) {
	sctx, cancel := s.storeContext(ctx)
	defer cancel()

	address, err := s.peers.Resolve(sctx, username)
	if err != nil {
		return "", storageError("resolve peer", err)
	}
	return address, nil
}

func (s *Service) appendMessage(ctx context.Context, msg chat.Message) (string, error) {
	sctx, cancel := s.storeContext(ctx)
	defer cancel()

	id, err := s.messages.Append(sctx, msg)
	if err != nil {
		return "", storageError("append message", err)
	}
	return id, nil
}

func (s *Service) touch(ctx context.Context, username string, now time.Time) {
	sctx, cancel := s.storeContext(ctx)
	defer cancel()

	if err := s.peers.Touch(sctx, username, now); err != nil {
		s.log.Warn().Err(err).Str("peer", username).Msg("failed to record heartbeat")
	}
}

// notePeer records that username just talked to us, learning its address
// when replyTo is usable.
func (s *Service) notePeer(ctx context.Context, username, replyTo string, now time.Time) {
	if replyTo == "" {
		s.touch(ctx, username, now)
		return
	}
	if err := validate.Address(replyTo); err != nil {
		s.log.Debug().Err(err).Str("peer", username).Msg("ignoring reply address")
		s.touch(ctx, username, now)
		return
	}

	sctx, cancel := s.storeContext(ctx)
	defer cancel()

	if err := s.peers.Upsert(sctx, username, replyTo, now); err != nil {
		s.log.Warn().Err(err).Str("peer", username).Msg("failed to record peer address")
	}
}

func (s *Service) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

// storageError adds op to err and maps store timeouts onto
// chat.ErrStorageUnavailable.
func storageError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, chat.ErrStorageUnavailable) {
		return fmt.Errorf("%w: %s: %w", chat.ErrStorageUnavailable, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
