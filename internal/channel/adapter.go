package channel

import (
	"context"

	"github.com/syncmesh/syncmesh/internal/ids"
	"github.com/syncmesh/syncmesh/internal/proto"
)

// DispatchFunc is how an adapter hands an inbound message to the core. The
// core supplies this when constructing an adapter; adapters never call the
// update core directly, only through this function (which the Directory
// wraps around channel registration) and through a Channel's Send.
type DispatchFunc func(channelID ids.ChannelID, msg proto.Message)

// Adapter is a factory and supervisor for a family of channels over one
// transport (spec §2's Adapter row). Adapters may create channels only
// between Start and Stop.
type Adapter interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	RemoveChannel(id ids.ChannelID) error
}
