package bookinfo

import (
	"path/filepath"
	"regexp"
	"strings"
)

const (
	DefaultAuthor   = "Unknown"
	DefaultCategory = "Tamil Novel"
)

// Meta is the structured part of a caption or filename.
type Meta struct {
	Title    string
	Author   string
	Category string
}

// Separators need whitespace around "by" and "-" so hyphenated words stay
// intact; pipes need none. The first occurrence of each separator wins.
var patterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)^(.*?)\s+by\s+(.*?)\s+-\s+(.*)$`),
	regexp.MustCompile(`(?s)^(.*?)\|(.*?)\|(.*)$`),
	regexp.MustCompile(`(?s)^(.*?)\s+-\s+(.*?)\s+-\s+(.*)$`),
}

// Parser turns free text into Meta. The zero value uses DefaultAuthor and
// DefaultCategory as fallbacks.
type Parser struct {
	DefaultAuthor   string
	DefaultCategory string
}

// Parse tries "T by A - C", "T | A | C" and "T - A - C" in that order.
// Captured groups are trimmed and may be empty. Unmatched text becomes the
// title with default author and category.
func (p Parser) Parse(text string) Meta {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return Meta{
				Title:    strings.TrimSpace(m[1]),
				Author:   strings.TrimSpace(m[2]),
				Category: strings.TrimSpace(m[3]),
			}
		}
	}

	author, category := p.DefaultAuthor, p.DefaultCategory
	if author == "" {
		author = DefaultAuthor
	}
	if category == "" {
		category = DefaultCategory
	}
	return Meta{Title: strings.TrimSpace(text), Author: author, Category: category}
}

// Parse uses the zero Parser.
func Parse(text string) Meta {
	return Parser{}.Parse(text)
}

// IsPDF reports whether a document name carries the PDF extension.
func IsPDF(name string) bool {
	return ExtractFileFormat(name) == "pdf"
}

// DeleteType strips the final extension from a file name.
func DeleteType(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// ExtractFileFormat returns the lower-case extension without the dot.
func ExtractFileFormat(filename string) string {
	format := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if format == "" {
		return "unknown"
	}
	return format
}
