package entity

import "time"

type DigestStatus string

const (
	DigestStatusNew       DigestStatus = "new"
	DigestStatusChanged   DigestStatus = "changed"
	DigestStatusUnchanged DigestStatus = "unchanged"
)

const (
	StageListing  = "listing"
	StageDownload = "download"
	StageDigest   = "digest"
	StagePublish  = "publish"
)

type Digest struct {
	Path     string       `yaml:"path"`
	RelPath  string       `yaml:"rel_path"`
	SHA256   string       `yaml:"sha256"`
	Size     int64        `yaml:"size"`
	MIMEType string       `yaml:"mime_type,omitempty"`
	Status   DigestStatus `yaml:"status,omitempty"`
}

type Failure struct {
	URL     string `yaml:"url"`
	RelPath string `yaml:"rel_path"`
	Stage   string `yaml:"stage"`
	Error   string `yaml:"error"`
}

// Report is the result of one mirror run.
type Report struct {
	RunID        string        `yaml:"run_id"`
	RepositoryID string        `yaml:"repository_id"`
	Repository   string        `yaml:"repository"`
	Name         string        `yaml:"name"`
	OutDir       string        `yaml:"out_dir"`
	GeneratedAt  time.Time     `yaml:"generated_at"`
	Duration     time.Duration `yaml:"-"`
	Directories  int           `yaml:"directories"`
	Files        int           `yaml:"files"`
	Digests      []Digest      `yaml:"digests"`
	Failures     []Failure     `yaml:"failures,omitempty"`
}

func (r *Report) Failed() bool {
	return len(r.Failures) > 0
}

// Manifest is what is remembered about the last successful run of a
// repository.
type Manifest struct {
	RunID       string
	GeneratedAt time.Time
	Digests     map[string]string // RelPath to SHA-256
}
