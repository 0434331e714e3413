package vfs

// NameTableLen and NameTableContains expose the name table to the external
// tests.
func (f *FS) NameTableLen() int { return f.table.len() }

func (f *FS) NameTableContains(n *Node) bool { return f.table.contains(n) }
