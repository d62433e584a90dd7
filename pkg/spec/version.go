package spec

import (
	utilversion "k8s.io/apimachinery/pkg/util/version"
)

const (
	MinSupportedFormatVersion = "0.4.0"
	MaxTestedFormatVersion    = "0.4.10"
)

var (
	minSupported = utilversion.MustParseSemantic(MinSupportedFormatVersion)
	maxTested    = utilversion.MustParseSemantic(MaxTestedFormatVersion)
)

// SupportedFormatVersions lists every format version the validator accepts.
func SupportedFormatVersions() []string {
	versions := []string{}
	for p := minSupported.Patch(); p <= maxTested.Patch(); p++ {
		versions = append(versions, minSupported.WithPatch(p).String())
	}
	return versions
}

// IsSupportedFormatVersion accepts every patch release of the supported minor version,
// including patches newer than the last tested one. Pre-releases are rejected.
func IsSupportedFormatVersion(v string) bool {
	parsed, err := utilversion.ParseSemantic(v)
	if err != nil || parsed.PreRelease() != "" {
		return false
	}
	return parsed.Major() == minSupported.Major() &&
		parsed.Minor() == minSupported.Minor() &&
		parsed.AtLeast(minSupported)
}
