package entity

// Tree is the local mirror of the remote directory hierarchy.
type Tree struct {
	Root  string   // Local path of the repository folder
	Dirs  []string // Local paths, index aligned with the discovered directories
	byRel map[string]string
}

func NewTree(root string) *Tree {
	return &Tree{
		Root:  root,
		byRel: make(map[string]string),
	}
}

func (t *Tree) Add(rel, localPath string) {
	t.Dirs = append(t.Dirs, localPath)
	t.byRel[rel] = localPath
}

// Lookup returns the local directory mirroring the remote directory rel.
func (t *Tree) Lookup(rel string) (string, bool) {
	p, ok := t.byRel[rel]
	return p, ok
}
