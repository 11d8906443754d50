// Package build provides build-time information injected via ldflags.
package build

// Info holds build-time information injected via ldflags.
type Info struct {
	Version   string
	Commit    string
	BuildDate string
	GoVersion string
}

// Contributors returns the list of project contributors.
func Contributors() []string {
	return []string{"alcove contributors"}
}

// RepoURL returns the GitHub repository URL.
func RepoURL() string {
	return "https://github.com/alcoveio/alcove"
}
