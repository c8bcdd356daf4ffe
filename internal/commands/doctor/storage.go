package doctor

import (
	"context"
	"fmt"

	"github.com/hay-kot/parley/internal/core/chat"
)

// StorageCheck verifies the message store and peer directory answer queries.
type StorageCheck struct {
	messages chat.MessageStore
	peers    chat.PeerDirectory
	self     string
}

// NewStorageCheck creates a storage check for the local user self.
func NewStorageCheck(messages chat.MessageStore, peers chat.PeerDirectory, self string) *StorageCheck {
	return &StorageCheck{messages: messages, peers: peers, self: self}
}

func (c *StorageCheck) Name() string {
	return "Storage"
}

func (c *StorageCheck) Run(ctx context.Context) Result {
	result := Result{Name: c.Name()}

	count, err := c.messages.Count(ctx, c.self)
	if err != nil {
		result.Items = append(result.Items, CheckItem{
			Label:  "Message store",
			Status: StatusFail,
			Detail: err.Error(),
		})
	} else {
		result.Items = append(result.Items, CheckItem{
			Label:  "Message store",
			Status: StatusPass,
			Detail: fmt.Sprintf("%d message(s) for %s", count, c.self),
		})
	}

	peers, err := c.peers.List(ctx)
	if err != nil {
		result.Items = append(result.Items, CheckItem{
			Label:  "Peer directory",
			Status: StatusFail,
			Detail: err.Error(),
		})
		return result
	}

	result.Items = append(result.Items, CheckItem{
		Label:  "Peer directory",
		Status: StatusPass,
		Detail: fmt.Sprintf("%d known peer(s)", len(peers)),
	})
	return result
}
