// Package moddir indexes the bootloader's module list by name for O(1)
// lookup, once more than a couple of modules are in play and a linear
// scan (bootinfo.FindModule) stops being the right tool.
package moddir

import (
	"hash/fnv"
	"sync"

	"substrate/bootinfo"
)

const bucketCount = 16

type entry struct {
	module bootinfo.RawModule
	next   *entry
}

// Directory is a fixed-bucket-count hash table keyed by module name,
// built once from a bootloader module list and read many times
// thereafter (by syscall handlers resolving a module reference, for
// instance). Each bucket has its own lock; building is not concurrent,
// lookups are.
type Directory struct {
	buckets [bucketCount]bucket
}

type bucket struct {
	sync.RWMutex
	head *entry
}

func hashName(name string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(name))
	return h.Sum32()
}

// Build indexes modules into a new Directory. Duplicate names keep the
// first occurrence, matching bootinfo.FindModule's linear-scan
// semantics.
func Build(modules []bootinfo.RawModule) *Directory {
	d := &Directory{}
	for _, m := range modules {
		d.insert(m)
	}
	return d
}

func (d *Directory) insert(m bootinfo.RawModule) {
	b := &d.buckets[hashName(m.Name)%bucketCount]
	b.Lock()
	defer b.Unlock()

	for e := b.head; e != nil; e = e.next {
		if e.module.Name == m.Name {
			return
		}
	}
	b.head = &entry{module: m, next: b.head}
}

// Lookup returns the module named name, or ok==false if the directory
// holds no such module.
func (d *Directory) Lookup(name string) (bootinfo.RawModule, bool) {
	b := &d.buckets[hashName(name)%bucketCount]
	b.RLock()
	defer b.RUnlock()

	for e := b.head; e != nil; e = e.next {
		if e.module.Name == name {
			return e.module, true
		}
	}
	return bootinfo.RawModule{}, false
}

// Len returns the total number of distinct modules indexed.
func (d *Directory) Len() int {
	n := 0
	for i := range d.buckets {
		d.buckets[i].RLock()
		for e := d.buckets[i].head; e != nil; e = e.next {
			n++
		}
		d.buckets[i].RUnlock()
	}
	return n
}
