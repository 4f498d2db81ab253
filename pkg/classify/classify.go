// Package classify derives partition keys, origins, and destination archive
// keys from raw object paths. All functions are pure: classification never
// fails, it degrades to the Unknown sentinel instead.
package classify

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Unknown is the sentinel origin for paths that cannot be classified.
const Unknown = "unknown"

// RawRoot is the path segment that marks the root of raw (archivable) data.
const RawRoot = "raw"

// ArchiveRoot is the prefix under which consolidated archives are written.
const ArchiveRoot = "archive"

// datePattern matches the year=/month=/day= partition segments. Paths are
// normalized before matching, so only the literal '=' form appears here.
var datePattern = regexp.MustCompile(`year=(\d+)/month=(\d+)/day=(\d+)`)

// Classification is the partition key and grouping label derived from a path.
type Classification struct {
	Year  int
	Month int
	Day   int

	// Origin is the segment sequence between the raw root and the date
	// partition, e.g. "acme/short/Contact". Unknown when it cannot be derived.
	Origin string

	// Known reports whether the date partition was parsed.
	Known bool
}

// Normalize replaces the percent-escaped form of '=' with the literal form.
// It is idempotent and must run once, before any other classification step.
func Normalize(path string) string {
	return strings.ReplaceAll(path, "%3D", "=")
}

// Classify extracts the partition key and origin from a normalized path.
func Classify(path string) Classification {
	cls := Classification{Origin: Unknown}

	m := datePattern.FindStringSubmatch(path)
	if m != nil {
		year, errY := strconv.Atoi(m[1])
		month, errM := strconv.Atoi(m[2])
		day, errD := strconv.Atoi(m[3])
		if errY == nil && errM == nil && errD == nil {
			cls.Year = year
			cls.Month = month
			cls.Day = day
			cls.Known = true
		}
	}

	cls.Origin = extractOrigin(path)
	return cls
}

// extractOrigin returns the segments between the raw root marker and the
// year= segment, dropping the leading root itself. For
// "raw/acme/short/Contact/year=2024/..." the origin is "acme/short/Contact".
func extractOrigin(path string) string {
	rawPos := strings.Index(path, RawRoot+"/")
	if rawPos < 0 {
		return Unknown
	}
	parts := strings.Split(path[rawPos:], "/")
	for i, part := range parts {
		if strings.HasPrefix(part, "year=") {
			if i > 1 {
				return strings.Join(parts[1:i], "/")
			}
			break
		}
	}
	return Unknown
}

// DayPath returns the path prefix through the day= segment, the unit of
// scan deduplication. The second result is false when the path has no
// date partition.
func DayPath(path string) (string, bool) {
	loc := datePattern.FindStringIndex(path)
	if loc == nil {
		return "", false
	}
	return path[:loc[1]], true
}

// DestinationKey returns the archive key a partition consolidates into,
// e.g. "archive/acme/short/Contact/2024-1-15.tar".
func DestinationKey(origin string, year, month, day int) string {
	return fmt.Sprintf("%s/%s/%d-%d-%d.tar", ArchiveRoot, origin, year, month, day)
}

// OriginDirname converts an origin to a filesystem-safe directory name,
// e.g. "acme/short/Contact" -> "acme.short.Contact".
func OriginDirname(origin string) string {
	return strings.ReplaceAll(origin, "/", ".")
}
