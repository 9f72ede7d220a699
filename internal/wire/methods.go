package wire

// Service names.
const (
	StreamsService                 = "event_store.client.streams.Streams"
	PersistentSubscriptionsService = "event_store.client.persistent_subscriptions.PersistentSubscriptions"
	GossipService                  = "event_store.client.gossip.Gossip"
)

// Full method paths.
const (
	MethodRead      = "/" + StreamsService + "/Read"
	MethodAppend    = "/" + StreamsService + "/Append"
	MethodDelete    = "/" + StreamsService + "/Delete"
	MethodTombstone = "/" + StreamsService + "/Tombstone"

	MethodPersistentRead   = "/" + PersistentSubscriptionsService + "/Read"
	MethodPersistentCreate = "/" + PersistentSubscriptionsService + "/Create"
	MethodPersistentDelete = "/" + PersistentSubscriptionsService + "/Delete"

	MethodGossipRead = "/" + GossipService + "/Read"
)

// Compile-time interface checks
var (
	_ Message = (*Empty)(nil)
	_ Message = (*ReadReq)(nil)
	_ Message = (*ReadResp)(nil)
	_ Message = (*AppendReq)(nil)
	_ Message = (*AppendResp)(nil)
	_ Message = (*DeleteReq)(nil)
	_ Message = (*DeleteResp)(nil)
	_ Message = (*PersistentReadReq)(nil)
	_ Message = (*PersistentReadResp)(nil)
	_ Message = (*CreatePersistentReq)(nil)
	_ Message = (*DeletePersistentReq)(nil)
	_ Message = (*ClusterInfo)(nil)
)
