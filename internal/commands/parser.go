// Package commands classifies inbound radio text against the gateway's
// hashtag grammar and owns the text normalization used for deduplication.
package commands

import (
	"regexp"
	"strconv"
	"strings"
)

// Kind tags the parsed command variant.
type Kind int

const (
	KindNone Kind = iota
	KindReport
	KindHelp
	KindStatus
	KindCount
	KindList
	KindQueue
	KindNodes
	KindLang
)

// List argument bounds.
const (
	ListDefault = 5
	ListMin     = 1
	ListMax     = 20
)

// Command is the parsed result. Text carries the report remainder (possibly
// empty, so the policy engine can produce the missing-text rejection), Limit
// the #osmlist count, Language the #osmlang argument.
type Command struct {
	Kind     Kind
	Text     string
	Limit    int
	Language string
}

// The report tag accepts #osmnote, #osm-note and #osm_note, case-insensitive
// and word-bounded so #osmnotetest never matches.
var reportTag = regexp.MustCompile(`(?i)#osm[-_]?note\b`)

// Parse classifies one inbound text payload.
func Parse(text string) Command {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Command{Kind: KindNone}
	}
	lower := strings.ToLower(trimmed)

	switch lower {
	case "#osmhelp":
		return Command{Kind: KindHelp}
	case "#osmstatus":
		return Command{Kind: KindStatus}
	case "#osmqueue":
		return Command{Kind: KindQueue}
	case "#osmnodes":
		return Command{Kind: KindNodes}
	}

	switch {
	case strings.HasPrefix(lower, "#osmcount"):
		return Command{Kind: KindCount}
	case strings.HasPrefix(lower, "#osmlist"):
		return Command{Kind: KindList, Limit: parseListLimit(trimmed)}
	case strings.HasPrefix(lower, "#osmlang"):
		return Command{Kind: KindLang, Language: parseLangArg(trimmed)}
	}

	if reportTag.MatchString(trimmed) {
		remaining := strings.TrimSpace(reportTag.ReplaceAllString(trimmed, ""))
		return Command{Kind: KindReport, Text: remaining}
	}

	return Command{Kind: KindNone}
}

func parseListLimit(text string) int {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return ListDefault
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil {
		return ListDefault
	}
	if n < ListMin {
		return ListMin
	}
	if n > ListMax {
		return ListMax
	}
	return n
}

func parseLangArg(text string) string {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return ""
	}
	return strings.ToLower(fields[1])
}

// Normalize trims and collapses every run of ASCII whitespace to a single
// space. Unicode case and diacritics are left alone. Idempotent.
func Normalize(s string) string {
	return strings.Join(strings.FieldsFunc(s, isASCIISpace), " ")
}

func isASCIISpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}
