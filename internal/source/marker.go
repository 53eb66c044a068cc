package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/livefeed/internal/domain"
)

// Marker summarizes the state of the sources at one point in time: the latest
// modification time among present sources and which sources are present.
type Marker struct {
	ModTime time.Time
	Present string
}

// Advanced reports whether m describes newer source state than prev. A source
// appearing or disappearing counts as a change even if no modification time
// moved forward.
func (m Marker) Advanced(prev Marker) bool {
	return m.ModTime.After(prev.ModTime) || m.Present != prev.Present
}

// IsZero reports whether no source was present.
func (m Marker) IsZero() bool {
	return m.ModTime.IsZero() && m.Present == ""
}

// Marker stats every source without reading bodies. Missing sources are
// simply absent from the marker; any other stat failure is returned wrapped
// in domain.ErrTransient.
func (r *Reader) Marker(ctx context.Context, specs []domain.SourceSpec) (Marker, error) {
	var m Marker
	present := make([]string, 0, len(specs))

	for _, spec := range specs {
		store, location, err := r.route(spec.Location)
		if err != nil {
			return Marker{}, fmt.Errorf("%w: %s: %v", domain.ErrTransient, spec.Name, err)
		}
		info, err := store.Stat(ctx, location)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return Marker{}, fmt.Errorf("%w: %s: %v", domain.ErrTransient, spec.Name, err)
		}
		present = append(present, spec.Name)
		if info.ModTime.After(m.ModTime) {
			m.ModTime = info.ModTime
		}
	}

	m.Present = strings.Join(present, ",")
	return m, nil
}
