package calls

import "context"

// Store is the persistence contract for call records.
//
// Rules:
// - Put creates a record exactly once; a second Put for the same call_id returns apperr.ErrAlreadyExists.
// - Update never creates a record; an unknown call_id returns apperr.ErrNotFound.
// - Update of the same call_id is serialized; updates of distinct call_ids do not block each other.
// - When stale rejection is enabled, an update whose sequence number is not newer than the
//   stored one returns apperr.ErrStaleEvent and leaves the record untouched.
type Store interface {
	Put(ctx context.Context, r CallRecord) error
	Get(ctx context.Context, callID string) (CallRecord, error)
	Update(ctx context.Context, callID string, u StatusUpdate) (CallRecord, error)
	List(ctx context.Context) ([]CallRecord, error)
}

// StoreOptions are shared by all Store implementations.
type StoreOptions struct {
	// RejectStale drops callbacks whose SequenceNumber is not newer than the stored one.
	// Off by default: the provider is trusted to deliver in order and the last write wins.
	RejectStale bool
}
