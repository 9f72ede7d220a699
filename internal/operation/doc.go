// Package operation models every RPC the client issues as exactly one of
// four shapes: unary, client stream, server stream or bidirectional stream.
//
// Each shape has an interface and a generic driver (Unary, ClientStream,
// ServerStream/OpenServerStream, OpenBidi). Concrete operations only build
// requests and classify responses; the drivers own the call lifecycle and
// never retry.
package operation

import (
	"github.com/rmacdonaldsmith/eventstore-go/internal/translate"
	"github.com/rmacdonaldsmith/eventstore-go/internal/wire"
	"github.com/rmacdonaldsmith/eventstore-go/pkg/event"
)

// Compile-time interface checks
var (
	_ ServerStreamCall[*wire.ReadReq, *wire.ReadResp, event.Envelope]         = (*ReadStream)(nil)
	_ ServerStreamCall[*wire.ReadReq, *wire.ReadResp, event.Envelope]         = (*ReadAll)(nil)
	_ ServerStreamCall[*wire.ReadReq, *wire.ReadResp, event.SubscriptionItem] = (*SubscribeToStream)(nil)
	_ ServerStreamCall[*wire.ReadReq, *wire.ReadResp, event.SubscriptionItem] = (*SubscribeToAll)(nil)

	_ ClientStreamCall[*wire.AppendReq, *wire.AppendResp, event.WriteResult] = (*Append)(nil)

	_ UnaryCall[*wire.DeleteReq, *wire.DeleteResp, event.DeleteResult]                   = (*DeleteStream)(nil)
	_ UnaryCall[*wire.DeleteReq, *wire.DeleteResp, event.DeleteResult]                   = (*TombstoneStream)(nil)
	_ UnaryCall[*wire.CreatePersistentReq, *wire.Empty, translate.Discarded]             = (*CreatePersistentSubscription)(nil)
	_ UnaryCall[*wire.DeletePersistentReq, *wire.Empty, translate.Discarded]             = (*DeletePersistentSubscription)(nil)
	_ UnaryCall[*wire.Empty, *wire.ClusterInfo, []Member]                                = (*ReadGossip)(nil)
	_ BidiStreamCall[*wire.PersistentReadReq, *wire.PersistentReadResp, event.Envelope] = (*PersistentSubscribe)(nil)
)
