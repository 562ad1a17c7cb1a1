package cache

import "github.com/objectfs/tilecache/pkg/types"

// Visitor is called once per tracked tile by TileCache.Accept. Visit runs with
// the cache lock held and must not call back into the cache.
type Visitor interface {
	Visit(info RecordInfo, resident bool)
}

// VisitorFunc adapts a function to Visitor
type VisitorFunc func(info RecordInfo, resident bool)

// Visit calls f
func (f VisitorFunc) Visit(info RecordInfo, resident bool) {
	f(info, resident)
}

// RecordCollector is a Visitor that keeps the records passing all of its
// filters. With no filters it keeps everything.
type RecordCollector struct {
	filters []func(RecordInfo, bool) bool
	records []RecordInfo
}

// NewRecordCollector creates an unfiltered collector
func NewRecordCollector() *RecordCollector {
	return &RecordCollector{}
}

// WithOwner keeps only tiles of owner
func (c *RecordCollector) WithOwner(owner types.OwnerID) *RecordCollector {
	c.filters = append(c.filters, func(info RecordInfo, _ bool) bool {
		return info.ID.Owner == owner
	})
	return c
}

// WithResidency keeps only tiles whose residency equals resident
func (c *RecordCollector) WithResidency(resident bool) *RecordCollector {
	c.filters = append(c.filters, func(_ RecordInfo, r bool) bool {
		return r == resident
	})
	return c
}

// Visit implements Visitor
func (c *RecordCollector) Visit(info RecordInfo, resident bool) {
	for _, keep := range c.filters {
		if !keep(info, resident) {
			return
		}
	}
	c.records = append(c.records, info)
}

// Records returns the collected records in visit order
func (c *RecordCollector) Records() []RecordInfo {
	return c.records
}

// Reset drops collected records but keeps the filters
func (c *RecordCollector) Reset() {
	c.records = nil
}
