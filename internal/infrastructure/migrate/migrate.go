// Package migrate orders schema migrations by semantic version.
package migrate

import (
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"
)

// Migration is one forward schema step.
type Migration struct {
	Version string
	Up      string
}

// Pending returns the migrations newer than current, oldest first. An empty
// current means nothing has been applied.
func Pending(current string, all []Migration) ([]Migration, error) {
	applied := semver.MustParse("0.0.0")
	if current != "" {
		v, err := semver.NewVersion(current)
		if err != nil {
			return nil, fmt.Errorf("migrate: invalid current schema version %s: %w", current, err)
		}
		applied = v
	}

	type versioned struct {
		m Migration
		v *semver.Version
	}
	out := make([]versioned, 0, len(all))
	for _, m := range all {
		v, err := semver.NewVersion(m.Version)
		if err != nil {
			return nil, fmt.Errorf("migrate: invalid migration version %s: %w", m.Version, err)
		}
		if !applied.LessThan(v) {
			continue
		}
		out = append(out, versioned{m: m, v: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].v.LessThan(out[j].v) })

	pending := make([]Migration, 0, len(out))
	for _, p := range out {
		pending = append(pending, p.m)
	}
	return pending, nil
}

// Latest returns the highest version in all.
func Latest(all []Migration) (string, error) {
	var latest *semver.Version
	var raw string
	for _, m := range all {
		v, err := semver.NewVersion(m.Version)
		if err != nil {
			return "", fmt.Errorf("migrate: invalid migration version %s: %w", m.Version, err)
		}
		if latest == nil || latest.LessThan(v) {
			latest, raw = v, m.Version
		}
	}
	return raw, nil
}
