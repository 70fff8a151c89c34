package utils

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver"
)

// normalizeVersion strips the prefixes and suffixes node software puts around
// the semantic version (lnd reports "0.18.0-beta commit=v0.18.0-beta").
func normalizeVersion(version string) string {
	if strings.Contains(version, "v") {
		version = strings.Split(version, "v")[1]
	}
	version = strings.Split(version, " ")[0]
	version = strings.Split(version, "rc")[0]
	return strings.Split(version, "-")[0]
}

func CheckVersion(name string, version string, minVersion string) error {
	normalized := normalizeVersion(version)

	parsed, err := semver.NewVersion(normalized)
	if err != nil {
		return fmt.Errorf("could not parse %s version %s: %w", name, version, err)
	}

	minParsed, err := semver.NewVersion(minVersion)
	if err != nil {
		return fmt.Errorf("could not parse %s min version %s: %w", name, minVersion, err)
	}

	if parsed.LessThan(minParsed) {
		return fmt.Errorf("incompatible %s version %s detected. Minimal supported version is: %s", name, normalized, minVersion)
	}
	return nil
}
