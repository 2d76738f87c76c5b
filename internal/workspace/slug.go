package workspace

import (
	"regexp"
	"strings"
)

// DefaultSlug is used when a name has no slug-safe characters.
const DefaultSlug = "workspace"

var (
	slugUnsafe  = regexp.MustCompile(`[^a-z0-9-]`)
	slugHyphens = regexp.MustCompile(`-+`)
)

// Slugify lowercases s, turns spaces into hyphens, drops everything outside
// [a-z0-9-], collapses hyphen runs and trims hyphens from both ends.
func Slugify(s string) string {
	slug := strings.ToLower(s)
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = slugUnsafe.ReplaceAllString(slug, "")
	slug = slugHyphens.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return DefaultSlug
	}
	return slug
}
