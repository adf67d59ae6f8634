package entity

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Repository describes the remote web layout of one repository: where its
// directory listings live and where raw file content is served.
type Repository struct {
	ID      string // Stable hash of RootURL
	RootURL string // Normalised root URL without trailing slash
	Name    string // Last path segment of the root URL, names the local mirror folder

	root       *url.URL
	treePrefix string // <root path>/<source segment>/<ref>
	rawPrefix  string // <root path>/<raw segment>/<ref>
}

func NewRepository(id, rootURL, sourceSegment, rawSegment, ref string) (*Repository, error) {
	u, err := url.Parse(strings.TrimSpace(rootURL))
	if err != nil {
		return nil, fmt.Errorf("cannot parse repository url: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	if u.Host == "" {
		return nil, fmt.Errorf("repository url has no host")
	}

	rootPath := "/" + strings.Trim(u.Path, "/")
	if rootPath == "/" {
		return nil, fmt.Errorf("repository url has no path")
	}

	segments := strings.Split(strings.Trim(rootPath, "/"), "/")

	root := &url.URL{Scheme: u.Scheme, User: u.User, Host: u.Host, Path: rootPath}

	return &Repository{
		ID:         id,
		RootURL:    root.String(),
		Name:       segments[len(segments)-1],
		root:       root,
		treePrefix: joinSegments(rootPath, sourceSegment, ref),
		rawPrefix:  joinSegments(rootPath, rawSegment, ref),
	}, nil
}

// TreeURL returns the listing URL of the directory at rel. The root
// directory is the repository URL itself.
func (r *Repository) TreeURL(rel string) string {
	if rel == "" {
		return r.RootURL
	}

	return r.buildURL(r.treePrefix, rel)
}

// RawURL returns the raw content URL of the file at rel.
func (r *Repository) RawURL(rel string) string {
	return r.buildURL(r.rawPrefix, rel)
}

// RelPath maps a listing link onto a slash separated path relative to the
// repository tree. It reports false for links leaving the tree.
func (r *Repository) RelPath(href string) (string, bool) {
	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}

	if u.Host != "" && !strings.EqualFold(u.Host, r.root.Host) {
		return "", false
	}

	p := path.Clean("/" + u.Path)
	if !strings.HasPrefix(p, r.treePrefix+"/") {
		return "", false
	}

	rel := strings.TrimPrefix(p, r.treePrefix+"/")
	if rel == "" {
		return "", false
	}

	return rel, true
}

func (r *Repository) buildURL(prefix, rel string) string {
	u := *r.root
	u.Path = prefix + "/" + strings.TrimLeft(rel, "/")
	u.RawPath = ""

	return u.String()
}

func joinSegments(base string, segments ...string) string {
	out := strings.TrimRight(base, "/")
	for _, s := range segments {
		if s = strings.Trim(s, "/"); s != "" {
			out += "/" + s
		}
	}

	return out
}
