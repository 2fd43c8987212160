// Package vault defines the client surface of the external credential
// vault. The engine only ever sees item metadata; passwords stay inside the
// vault and are injected by the automation executor directly.
package vault

import "context"

// ItemMetadata describes a vault item without its secret material.
type ItemMetadata struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Username string `json:"username"`
	Domain   string `json:"domain"`
}

// Client is the read-only view of the credential vault.
type Client interface {
	// Item returns metadata for one vault item. The second return value
	// is false when the item does not exist.
	Item(ctx context.Context, id string) (ItemMetadata, bool, error)

	// List returns metadata for all items visible to this client.
	List(ctx context.Context) ([]ItemMetadata, error)
}
