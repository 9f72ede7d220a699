// Package selector picks the cluster node an operation runs against and
// hands out shared gRPC connections to it.
//
// Candidates come from a Discovery (a static endpoint list or gossip
// through seed nodes) and are ranked by the requested Role. A node that
// answers NotLeader can report the leader's endpoint, which is then
// preferred by the next acquisition.
package selector
