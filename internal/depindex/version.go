package depindex

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// normalizeConstraint rewrites Python specifier operators into the semver
// constraint grammar. "==1.2.3" pins, "~=1.2" behaves like "~1.2".
func normalizeConstraint(spec string) string {
	spec = strings.TrimSpace(spec)
	spec = strings.ReplaceAll(spec, "~=", "~")
	spec = strings.ReplaceAll(spec, "==", "=")
	return spec
}

// satisfies reports whether an installed version meets a declared
// constraint. Unparseable inputs count as satisfied so odd version schemes
// never produce false outdated reports.
func satisfies(constraint, installed string) bool {
	constraint = normalizeConstraint(constraint)
	if constraint == "" || installed == "" {
		return true
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return true
	}
	v, err := semver.NewVersion(strings.TrimPrefix(installed, "v"))
	if err != nil {
		return true
	}
	return c.Check(v)
}

// behindPin reports whether a pinned declaration is strictly older than the
// resolved version, the common "bump the pin" situation.
func behindPin(declaredVersion, installed string) bool {
	spec := normalizeConstraint(declaredVersion)
	spec = strings.TrimPrefix(spec, "=")
	pinned, err := semver.NewVersion(strings.TrimPrefix(strings.TrimSpace(spec), "v"))
	if err != nil {
		return false
	}
	current, err := semver.NewVersion(strings.TrimPrefix(installed, "v"))
	if err != nil {
		return false
	}
	return pinned.LessThan(current)
}
