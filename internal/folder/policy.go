// Package folder maps chat channels to vault folders.
package folder

import (
	"fmt"
	"strings"

	"github.com/starford/gleaner/internal/render"
)

// DefaultFolder receives records whose channel name has no usable characters.
const DefaultFolder = "general"

// Maker creates a vault directory; existing directories are not an error.
type Maker interface {
	MkdirAll(dir string) error
}

// Policy resolves channel names to vault-relative folders.
type Policy struct {
	aliases map[string]string
	maker   Maker
}

// NewPolicy returns a policy that consults aliases (channel → folder)
// before falling back to a slug of the channel name.
func NewPolicy(maker Maker, aliases map[string]string) *Policy {
	cleaned := make(map[string]string, len(aliases))
	for ch, dir := range aliases {
		if dir = strings.Trim(strings.TrimSpace(dir), "/"); dir != "" {
			cleaned[ch] = dir
		}
	}
	return &Policy{aliases: cleaned, maker: maker}
}

// Resolve returns the folder for channel. It is deterministic.
func (p *Policy) Resolve(channel string) string {
	if dir, ok := p.aliases[channel]; ok {
		return dir
	}
	if slug := render.Slug(strings.TrimPrefix(channel, "#"), 64); slug != "" {
		return slug
	}
	return DefaultFolder
}

// EnsureExists creates location if missing.
func (p *Policy) EnsureExists(location string) error {
	if err := p.maker.MkdirAll(location); err != nil {
		return fmt.Errorf("folder: ensure %s: %w", location, err)
	}
	return nil
}

// DocumentPath joins a resolved folder and a file name with a forward slash.
func DocumentPath(location, fileName string) string {
	return location + "/" + fileName
}
