package reconcile

import "github.com/roach88/logsync/internal/ir"

// Batch is a classified entry batch: collections in first-seen order, each
// holding its objects in first-seen order.
type Batch struct {
	Collections []*CollectionGroup
	index       map[string]int
}

// CollectionGroup holds the objects of one collection.
type CollectionGroup struct {
	Name    string
	Objects []*ObjectGroup
	index   map[ir.PKKey]int
}

// ObjectGroup holds the entries addressed to one (collection, pk), in input order.
// Indices[i] is the batch position of Entries[i].
type ObjectGroup struct {
	Key     ir.PKKey
	PK      ir.IRValue
	Entries []ir.LogEntry
	Indices []int
}

// Classify groups entries by collection and structural pk identity.
// Relative input order is preserved within every group. It always succeeds.
func Classify(entries []ir.LogEntry) *Batch {
	b := &Batch{index: make(map[string]int)}
	for i, e := range entries {
		h := e.Header()
		obj := b.collection(h.Collection).object(h.PK)
		obj.Entries = append(obj.Entries, e)
		obj.Indices = append(obj.Indices, i)
	}
	return b
}

// Lookup returns the entries addressed to (collection, pk), or nil.
func (b *Batch) Lookup(collection string, pk ir.IRValue) []ir.LogEntry {
	ci, ok := b.index[collection]
	if !ok {
		return nil
	}
	c := b.Collections[ci]
	oi, ok := c.index[ir.KeyOf(pk)]
	if !ok {
		return nil
	}
	return c.Objects[oi].Entries
}

// Len returns the number of distinct objects in the batch.
func (b *Batch) Len() int {
	n := 0
	for _, c := range b.Collections {
		n += len(c.Objects)
	}
	return n
}

func (b *Batch) collection(name string) *CollectionGroup {
	if i, ok := b.index[name]; ok {
		return b.Collections[i]
	}
	c := &CollectionGroup{Name: name, index: make(map[ir.PKKey]int)}
	b.index[name] = len(b.Collections)
	b.Collections = append(b.Collections, c)
	return c
}

func (c *CollectionGroup) object(pk ir.IRValue) *ObjectGroup {
	key := ir.KeyOf(pk)
	if i, ok := c.index[key]; ok {
		return c.Objects[i]
	}
	o := &ObjectGroup{Key: key, PK: pk}
	c.index[key] = len(c.Objects)
	c.Objects = append(c.Objects, o)
	return o
}
