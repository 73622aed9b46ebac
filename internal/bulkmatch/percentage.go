package bulkmatch

import (
	"regexp"
	"strconv"
	"strings"
)

const tailPages = 20

var (
	summaryPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\d{1,3}(?:[.,]\d{1,2})?)\s*%\s*overall\s+similarity`),
		regexp.MustCompile(`(?i)similarity\s+index\s*:?\s*(\d{1,3}(?:[.,]\d{1,2})?)\s*%`),
	}
	originalityPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?is)(\d{1,3}(?:[.,]\d{1,2})?)\s*%.{0,200}?originality\s+report`),
		regexp.MustCompile(`(?is)originality\s+report.{0,200}?(\d{1,3}(?:[.,]\d{1,2})?)\s*%`),
	}
)

// ExtractSimilarityPercentage reads the overall similarity from report page
// text. The summary on page two is tried first, then the last pages.
func ExtractSimilarityPercentage(pages []string) (float64, bool) {
	if len(pages) >= 2 {
		if v, ok := firstMatch(pages[1], summaryPatterns); ok {
			return v, true
		}
	}
	start := len(pages) - tailPages
	if start < 0 {
		start = 0
	}
	for i := len(pages) - 1; i >= start; i-- {
		if v, ok := firstMatch(pages[i], originalityPatterns); ok {
			return v, true
		}
	}
	return 0, false
}

func firstMatch(text string, patterns []*regexp.Regexp) (float64, bool) {
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
			if err == nil && v >= 0 && v <= 100 {
				return v, true
			}
		}
	}
	return 0, false
}
