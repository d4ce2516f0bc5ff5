package target

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// BuildConfig describes the build axis that scopes fingerprints and pass
// records. Two configurations are equal iff all fields are equal; a record
// written under one configuration never satisfies another.
type BuildConfig struct {
	Platform      string   `json:"platform"`
	Configuration string   `json:"configuration"`
	Arch          string   `json:"arch"`
	Args          []string `json:"args,omitempty"`
	OutputPath    string   `json:"output_path,omitempty"`
}

// Clone returns a copy that shares no memory with c.
func (c BuildConfig) Clone() BuildConfig {
	c.Args = slices.Clone(c.Args)
	return c
}

// Equal reports whether both configurations are identical, including the
// order of the extra build arguments.
func (c BuildConfig) Equal(other BuildConfig) bool {
	return c.Platform == other.Platform &&
		c.Configuration == other.Configuration &&
		c.Arch == other.Arch &&
		c.OutputPath == other.OutputPath &&
		slices.Equal(c.Args, other.Args)
}

// Key returns a stable identifier for the configuration (xxHash64 hex).
// Fields are length-prefixed so that no two distinct configurations can
// produce the same byte stream.
func (c BuildConfig) Key() string {
	h := xxhash.New()
	write := func(s string) {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(s)))
		_, _ = h.Write(n[:])
		_, _ = h.WriteString(s)
	}

	write(c.Platform)
	write(c.Configuration)
	write(c.Arch)
	write(c.OutputPath)
	write(fmt.Sprint(len(c.Args)))
	for _, arg := range c.Args {
		write(arg)
	}

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], h.Sum64())
	return hex.EncodeToString(buf[:])
}

// String returns a compact human-readable form for logs.
func (c BuildConfig) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s/%s/%s", c.Platform, c.Configuration, c.Arch)
	if len(c.Args) > 0 {
		fmt.Fprintf(&b, " args=%s", strings.Join(c.Args, ","))
	}
	if c.OutputPath != "" {
		fmt.Fprintf(&b, " out=%s", c.OutputPath)
	}
	return b.String()
}
