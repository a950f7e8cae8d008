package githubapi

import (
	"fmt"
	"regexp"
	"strconv"
)

// prURLRegex is the single source of truth for PR identity. Both the
// single-fetch path and bulk extraction go through it so the rules never
// diverge.
var prURLRegex = regexp.MustCompile(`(?i)github\.com/([^/\s]+)/([^/\s]+)/pull/(\d+)`)

var ErrInvalidPRURL = fmt.Errorf("invalid GitHub PR URL, expected https://github.com/<owner>/<repo>/pull/<number>")

// PRIdentity names one pull request: owner, repo, number and the canonical
// owner/repo#number identifier.
type PRIdentity struct {
	Owner  string
	Repo   string
	Number int
	PRID   string
}

// ParsePRURL extracts a PR identity from free text. Anything around the
// github.com/.../pull/N fragment is ignored.
func ParsePRURL(raw string) (*PRIdentity, error) {
	matches := prURLRegex.FindStringSubmatch(raw)
	if matches == nil {
		return nil, ErrInvalidPRURL
	}

	number, err := strconv.Atoi(matches[3])
	if err != nil {
		return nil, ErrInvalidPRURL
	}

	return &PRIdentity{
		Owner:  matches[1],
		Repo:   matches[2],
		Number: number,
		PRID:   fmt.Sprintf("%s/%s#%d", matches[1], matches[2], number),
	}, nil
}

// MatchesPRURL reports whether the cell contains a parseable PR URL.
func MatchesPRURL(raw string) bool {
	return prURLRegex.MatchString(raw)
}
