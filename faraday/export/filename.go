package export

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/arthur-debert/faraday/formats"
	"github.com/arthur-debert/faraday/types"
)

var dashRuns = regexp.MustCompile("-+")

// Filename returns the download name for an experiment: the sanitised
// experiment name plus the format extension.
func Filename(exp types.Experiment, format *formats.TableFormat) string {
	if format == nil {
		format = formats.XLSX
	}
	return sanitizeName(exp.Name) + format.Extension
}

// archiveFilename prefixes the id so names stay unique inside a backup
func archiveFilename(exp types.Experiment, format *formats.TableFormat) string {
	return exp.ID + "-" + Filename(exp, format)
}

// sanitizeName keeps letters, digits, dashes and underscores, lowercased,
// with spaces turned into dashes and at most 40 characters.
func sanitizeName(name string) string {
	result := strings.ToLower(name)
	result = strings.ReplaceAll(result, " ", "-")

	var builder strings.Builder
	for _, r := range result {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			builder.WriteRune(r)
		}
	}

	result = dashRuns.ReplaceAllString(builder.String(), "-")
	result = strings.Trim(result, "-")

	if runes := []rune(result); len(runes) > 40 {
		result = strings.TrimRight(string(runes[:40]), "-")
	}
	if result == "" {
		result = "experiment"
	}
	return result
}
