package entity

// Entry is one child found on a listing page. It lives only as long as
// the page that produced it.
type Entry struct {
	Href  string // Absolute link target
	Name  string // Display name
	IsDir bool
}

// Directory is a remote directory with its path relative to the repository
// tree. The root directory has an empty RelPath.
type Directory struct {
	URL     string
	RelPath string
}

// RemoteFile is a downloadable file.
type RemoteFile struct {
	URL     string // Raw content URL
	RelPath string // Path relative to the repository tree
	Dir     string // RelPath of the containing directory
	Name    string
}
