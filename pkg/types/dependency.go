package types

// DependencySource identifies where a dependency declaration came from
type DependencySource string

const (
	SourceInstalled    DependencySource = "installed"
	SourceRequirements DependencySource = "requirements"
	SourcePyproject    DependencySource = "pyproject"
	SourceLockfile     DependencySource = "lockfile"
)

// DependencyRecord describes one declared or installed dependency and the
// places it is actually used, discovered via import search.
type DependencyRecord struct {
	Name       string
	Version    string // empty when the manifest declares no version
	Source     DependencySource
	Section    string // dependency group, e.g. "dev" or "optional"
	UsageSites []Match
}

// Used reports whether any usage site was found in the scanned tree
func (d *DependencyRecord) Used() bool {
	return len(d.UsageSites) > 0
}
