package ports

import "github.com/ghalamif/CamFlow/internal/domain"

type WALEntryID uint64

type WAL interface {
	Append(r *domain.Record) (WALEntryID, error)
	Iterate(from WALEntryID, fn func(id WALEntryID, r *domain.Record) error) error
	Commit(upto WALEntryID) error
	TruncateCommitted() error
	Flush() error
	Close() error
	Stats() WALStats
}

type WALStats struct {
	OldestUncommitted WALEntryID
	LatestAppended    WALEntryID
	SizeBytes         int64
}
