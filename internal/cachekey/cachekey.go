// Package cachekey builds the Redis keys and invalidation patterns shared by readers and writers.
package cachekey

import (
	"strconv"
	"strings"
)

// Family groups analytics keys that are invalidated together.
type Family string

const (
	FamilySummary      Family = "summary"
	FamilyTrend        Family = "trend"
	FamilyStatus       Family = "status"
	FamilyDistribution Family = "distribution"
	FamilyPerformance  Family = "performance"
	FamilyListing      Family = "listing"
)

// Exact keys outside the analytics namespace.
const (
	RecentActivities = "activities:recent"
	AllScholarships  = "scholarships:all"
)

const (
	analyticsPrefix = "analytics"
	anyValue        = "all"
)

// Families lists every analytics family.
var Families = []Family{
	FamilySummary,
	FamilyTrend,
	FamilyStatus,
	FamilyDistribution,
	FamilyPerformance,
	FamilyListing,
}

// Percent-encoding keeps the separator and glob metacharacters out of user supplied parts.
var escaper = strings.NewReplacer(
	"%", "%25",
	":", "%3A",
	"*", "%2A",
	"?", "%3F",
	"[", "%5B",
	"]", "%5D",
	"\\", "%5C",
	"=", "%3D",
)

// Scope identifies the audience of an aggregate.
type Scope struct {
	Year      int
	Role      string
	FacultyID string
}

// Analytics returns analytics:<family>:y=<year|all>:r=<role>:f=<faculty|all>[:<extra>...].
func Analytics(family Family, scope Scope, extra ...string) string {
	var b strings.Builder
	b.Grow(64)
	b.WriteString(analyticsPrefix)
	b.WriteByte(':')
	b.WriteString(string(family))
	b.WriteString(":y=")
	if scope.Year > 0 {
		b.WriteString(strconv.Itoa(scope.Year))
	} else {
		b.WriteString(anyValue)
	}
	b.WriteString(":r=")
	b.WriteString(valueOrAll(scope.Role))
	b.WriteString(":f=")
	b.WriteString(valueOrAll(scope.FacultyID))
	for _, part := range extra {
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}

// Param renders a named extra segment such as "d=<department>".
func Param(name, value string) string {
	return Escape(name) + "=" + valueOrAll(value)
}

// Escape percent-encodes a key part. A literal "all" is encoded so it never reads as the wildcard value.
func Escape(part string) string {
	if part == anyValue {
		return "%61ll"
	}
	return escaper.Replace(part)
}

// FamilyPattern matches every key of one analytics family.
func FamilyPattern(family Family) string {
	return analyticsPrefix + ":" + string(family) + ":*"
}

// ApplicationDomain is every pattern or key derived from application status.
func ApplicationDomain() []string {
	patterns := make([]string, 0, len(Families)+1)
	for _, family := range Families {
		patterns = append(patterns, FamilyPattern(family))
	}
	return append(patterns, RecentActivities)
}

// ScholarshipDomain is every pattern or key derived from scholarship rows.
func ScholarshipDomain() []string {
	return []string{FamilyPattern(FamilySummary), AllScholarships}
}

func valueOrAll(value string) string {
	if value == "" {
		return anyValue
	}
	return Escape(value)
}
