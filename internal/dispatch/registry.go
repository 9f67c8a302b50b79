package dispatch

import (
	"fmt"
	"strings"

	"AnnounceRelay/internal/ports"
)

// DefaultPlatform is assumed for destinations written without a platform prefix.
const DefaultPlatform = "discord"

// Destination is a single delivery target.
type Destination struct {
	Platform string
	ID       string
}

func (d Destination) String() string {
	return d.Platform + ":" + d.ID
}

// ParseDestination reads "platform:id"; a bare id belongs to DefaultPlatform.
func ParseDestination(raw string) (Destination, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Destination{}, fmt.Errorf("empty destination")
	}
	platform, id, found := strings.Cut(raw, ":")
	if !found {
		return Destination{Platform: DefaultPlatform, ID: raw}, nil
	}
	platform = strings.ToLower(strings.TrimSpace(platform))
	id = strings.TrimSpace(id)
	if platform == "" || id == "" {
		return Destination{}, fmt.Errorf("malformed destination %q", raw)
	}
	return Destination{Platform: platform, ID: id}, nil
}

// ParseDestinations parses an ordered list, keeping order and dropping exact repeats.
func ParseDestinations(raw []string) ([]Destination, error) {
	seen := map[Destination]struct{}{}
	out := make([]Destination, 0, len(raw))
	for _, r := range raw {
		d, err := ParseDestination(r)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out, nil
}

// Registry keeps a mapping from platform names to their publishers.
type Registry struct {
	publishers map[string]ports.Publisher
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{publishers: map[string]ports.Publisher{}}
}

// Register adds or replaces a publisher implementation.
func (r *Registry) Register(p ports.Publisher) {
	if p == nil {
		return
	}
	if r.publishers == nil {
		r.publishers = map[string]ports.Publisher{}
	}
	r.publishers[p.Platform()] = p
}

// Resolve returns a publisher by platform or an error if it is absent.
func (r *Registry) Resolve(platform string) (ports.Publisher, error) {
	if p, ok := r.publishers[platform]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("publisher %s is not registered", platform)
}
