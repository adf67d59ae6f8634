package common

import "fmt"

var (
	ErrInvalidRepositoryURL = fmt.Errorf("invalid repository url")
	ErrNetwork              = fmt.Errorf("network error")
	ErrUnexpectedStatus     = fmt.Errorf("unexpected http status")
	ErrPathResolutionMiss   = fmt.Errorf("cannot resolve local directory")
	ErrDigestIO             = fmt.Errorf("cannot read file for digest")
	ErrInvalidPath          = fmt.Errorf("invalid path")
	ErrMirrorAlreadyRunning = fmt.Errorf("mirror process has already started")
	ErrManifestNotFound     = fmt.Errorf("manifest not found")
	ErrOutsideTree          = fmt.Errorf("link leads outside the repository tree")
	ErrListingTooLarge      = fmt.Errorf("listing page is too large")
)
