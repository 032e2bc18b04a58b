// Package version carries build metadata stamped with -ldflags and filled
// in from the embedded VCS settings.
package version

import (
	"fmt"
	"runtime/debug"
)

const (
	AppName   = "httppipe"
	Component = "server"
)

// set with -ldflags "-X github.com/keithlinneman/httppipe/internal/version.Version=..."
var (
	Version    = "dev"
	Commit     = "none"
	CommitDate string
	BuildDate  string
	BuildId    string
	GoVersion  string
	VCSDirty   *bool
)

type Info struct {
	Version    string `json:"version"`
	Commit     string `json:"commit"`
	CommitDate string `json:"commit_date"`
	BuildDate  string `json:"build_date"`
	BuildId    string `json:"build_id"`
	GoVersion  string `json:"go_version"`
	VCSDirty   *bool  `json:"vcs_dirty,omitempty"`
}

func Get() Info {
	out := Info{
		Version:    Version,
		Commit:     Commit,
		CommitDate: CommitDate,
		BuildDate:  BuildDate,
		BuildId:    BuildId,
		GoVersion:  GoVersion,
		VCSDirty:   VCSDirty,
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		out.GoVersion = bi.GoVersion
		var dirty *bool
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if out.Commit == "none" && s.Value != "" {
					out.Commit = s.Value
				}
			case "vcs.time":
				if out.BuildDate == "" && s.Value != "" {
					out.BuildDate = s.Value
				}
				out.CommitDate = s.Value
			case "vcs.modified":
				switch s.Value {
				case "true":
					t := true
					dirty = &t
				case "false":
					f := false
					dirty = &f
				}
			}
		}
		if dirty != nil {
			out.VCSDirty = dirty
		}
	}

	return out
}

// String is a one-line summary for startup logs and user agents.
func (i Info) String() string {
	commit := i.Commit
	if len(commit) > 12 {
		commit = commit[:12]
	}
	s := fmt.Sprintf("%s %s (%s", AppName, i.Version, commit)
	if i.VCSDirty != nil && *i.VCSDirty {
		s += ", dirty"
	}
	return s + ")"
}

// LogFields returns key/value pairs for structured logs.
func (i Info) LogFields() []any {
	kv := []any{
		"version", i.Version,
		"commit", i.Commit,
		"build_date", i.BuildDate,
		"go_version", i.GoVersion,
	}
	if i.VCSDirty != nil {
		kv = append(kv, "vcs_dirty", *i.VCSDirty)
	}
	return kv
}
