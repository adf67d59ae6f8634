package entity

// DownloadResult is the outcome of one file download.
type DownloadResult struct {
	File      RemoteFile
	LocalPath string // Final path on disk, set on success
	Size      int64
	Err       error
}

func (r *DownloadResult) OK() bool {
	return r.Err == nil
}
