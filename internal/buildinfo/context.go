// Package buildinfo holds build-time metadata injected with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/tphakala/seld-go/internal/buildinfo.version=v0.3.0"
package buildinfo

import "runtime/debug"

// UnknownValue is reported for metadata the build did not provide.
const UnknownValue = "unknown"

var (
	version   string
	buildDate string
)

// Context contains build-time metadata that is not user-configurable.
type Context struct {
	Version   string
	BuildDate string
	GoVersion string
}

// NewContext returns metadata with the given values.
func NewContext(version, buildDate string) *Context {
	return &Context{Version: version, BuildDate: buildDate}
}

// Current returns the metadata of the running binary. The Go version comes
// from the embedded module build info.
func Current() *Context {
	c := NewContext(version, buildDate)
	if info, ok := debug.ReadBuildInfo(); ok {
		c.GoVersion = info.GoVersion
		if c.Version == "" && info.Main.Version != "" && info.Main.Version != "(devel)" {
			c.Version = info.Main.Version
		}
	}
	return c
}

// GetVersion returns the version or UnknownValue.
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return UnknownValue
	}
	return c.Version
}

// GetBuildDate returns the build date or UnknownValue.
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return UnknownValue
	}
	return c.BuildDate
}

// String renders the metadata for --version output.
func (c *Context) String() string {
	s := c.GetVersion() + " (built " + c.GetBuildDate()
	if c != nil && c.GoVersion != "" {
		s += ", " + c.GoVersion
	}
	return s + ")"
}
