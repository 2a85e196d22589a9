package outbound

import (
	"context"

	"github.com/keymesh/socialproof/internal/domain/entity"
)

// UserQuery selects directory rows by address or by username. Exactly one is set.
type UserQuery struct {
	UserAddress string
	Username    string
}

// DirectoryClient talks to the remote user directory service.
type DirectoryClient interface {
	// Search returns rows whose username starts with prefix.
	Search(ctx context.Context, networkID entity.NetworkID, prefix string) ([]entity.RawUserInfo, error)

	// Users returns rows matching query.
	Users(ctx context.Context, networkID entity.NetworkID, query UserQuery) ([]entity.RawUserInfo, error)
}
