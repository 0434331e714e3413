package vfs

// nameTable indexes live nodes by (parent id, name). Buckets are singly
// linked through Node.nameNext.
type nameTable struct {
	buckets []*Node
}

func newNameTable(size int) *nameTable {
	if size <= 0 {
		size = DefaultNameTableSize
	}
	return &nameTable{buckets: make([]*Node, size)}
}

// hash folds name with the h*31+c recurrence in 32-bit arithmetic and mixes
// in the parent id.
func (t *nameTable) hash(parentID NodeID, name string) int {
	var h int32
	for i := 0; i < len(name); i++ {
		h = (h << 5) - h + int32(name[i])
	}
	return int((uint32(parentID) + uint32(h)) % uint32(len(t.buckets)))
}

func (t *nameTable) add(n *Node) {
	idx := t.hash(n.parent.ID, n.Name)
	n.nameNext = t.buckets[idx]
	t.buckets[idx] = n
}

func (t *nameTable) remove(n *Node) {
	idx := t.hash(n.parent.ID, n.Name)
	if t.buckets[idx] == n {
		t.buckets[idx] = n.nameNext
		n.nameNext = nil
		return
	}
	for cur := t.buckets[idx]; cur != nil; cur = cur.nameNext {
		if cur.nameNext == n {
			cur.nameNext = n.nameNext
			n.nameNext = nil
			return
		}
	}
}

func (t *nameTable) find(parent *Node, name string) *Node {
	for n := t.buckets[t.hash(parent.ID, name)]; n != nil; n = n.nameNext {
		if n.parent.ID == parent.ID && n.Name == name {
			return n
		}
	}
	return nil
}

// contains reports whether n is currently chained in its bucket.
func (t *nameTable) contains(n *Node) bool {
	for cur := t.buckets[t.hash(n.parent.ID, n.Name)]; cur != nil; cur = cur.nameNext {
		if cur == n {
			return true
		}
	}
	return false
}

// purge destroys every node whose mount is in mounts.
func (t *nameTable) purge(mounts map[*Mount]bool) {
	for i, head := range t.buckets {
		var kept, tail *Node
		for n := head; n != nil; {
			next := n.nameNext
			n.nameNext = nil
			if !mounts[n.mount] {
				if tail == nil {
					kept = n
				} else {
					tail.nameNext = n
				}
				tail = n
			}
			n = next
		}
		t.buckets[i] = kept
	}
}

// len counts chained nodes; used by tests and diagnostics.
func (t *nameTable) len() int {
	count := 0
	for _, head := range t.buckets {
		for n := head; n != nil; n = n.nameNext {
			count++
		}
	}
	return count
}
