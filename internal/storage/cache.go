package storage

// ProductCache holds committed product snapshots. Writers refresh it only
// after their transaction commits.
type ProductCache interface {
	Get(id string) (*Product, bool)
	// Generation changes on every Delete. Take it before reading the store.
	Generation() uint64
	// Set stores p unless an entry was deleted after gen was taken or a newer
	// version is already cached.
	Set(p *Product, gen uint64)
	Delete(id string)
}
