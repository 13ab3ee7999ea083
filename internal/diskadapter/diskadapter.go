// Package diskadapter adapts internal/store.Store to the
// internal/eviction.Tier interface, translating the store's (int64, error)
// return shapes into the eviction package's error-free contract by
// recording the first error encountered and surfacing it to the caller
// once eviction.Run returns.
package diskadapter

import "duracache/internal/store"

// Adapter lets eviction.Run operate directly on the persistent store. Err
// must be checked after every call to eviction.Run.
type Adapter struct {
	Store *store.Store
	Err   error
}

func (a *Adapter) Count() int {
	n, err := a.Store.Count()
	if err != nil {
		a.recordErr(err)
		return 0
	}
	return int(n)
}

func (a *Adapter) TotalSize() int64 {
	n, err := a.Store.SumSize()
	if err != nil {
		a.recordErr(err)
		return 0
	}
	return n
}

func (a *Adapter) Oldest() (key string, timestamp float64, size int64, ok bool) {
	rows, err := a.Store.IterOldest(1)
	if err != nil {
		a.recordErr(err)
		return "", 0, 0, false
	}
	if len(rows) == 0 {
		return "", 0, 0, false
	}
	r := rows[0]
	return r.Key, r.Timestamp, r.Size, true
}

func (a *Adapter) Remove(key string) {
	if err := a.Store.Delete(key); err != nil {
		a.recordErr(err)
	}
}

func (a *Adapter) recordErr(err error) {
	if a.Err == nil {
		a.Err = err
	}
}
