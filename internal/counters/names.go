package counters

// Flat dotted counter names.
const (
	NumFullSync             = "kvstore.thrift.num_full_sync.count"
	NumFullSyncSuccess      = "kvstore.thrift.num_full_sync_success.count"
	NumFullSyncFailure      = "kvstore.thrift.num_full_sync_failure.count"
	NumFinalizedSync        = "kvstore.thrift.num_finalized_sync.count"
	NumFinalizedSyncSuccess = "kvstore.thrift.num_finalized_sync_success.count"
	NumFinalizedSyncFailure = "kvstore.thrift.num_finalized_sync_failure.count"
	NumKeys                 = "kvstore.num_keys"
	NumPeers                = "kvstore.num_peers"
	PublicationQueueDrops   = "kvstore.publication_queue_drops"
)
