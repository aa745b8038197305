package rag

import (
	"sort"
	"strings"
	"unicode"

	"repolens/internal/store"
)

const (
	keywordFileBoost    = 0.10
	keywordSummaryBoost = 0.05
	patternBoost        = 0.15
	implementationBoost = 0.05
	nonConfigBoost      = 0.05
)

// topicPatterns boost a file when the question mentions the topic and the
// file name carries one of its markers.
var topicPatterns = []struct {
	topic   string
	markers []string
}{
	{"api", []string{"api"}},
	{"component", []string{"component"}},
	{"auth", []string{"auth"}},
	{"database", []string{"db", "prisma", "sql"}},
}

var configMarkers = []string{".config.", "package.json", ".lock", "-lock.", "go.sum"}

// Keywords returns the distinct lowercase words of the question longer
// than three characters, with surrounding punctuation removed.
func Keywords(question string) []string {
	seen := map[string]bool{}
	var out []string
	for _, w := range strings.Fields(strings.ToLower(question)) {
		w = strings.TrimFunc(w, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if len([]rune(w)) <= 3 || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// Boost applies keyword and file-kind boosts to every result and returns
// them sorted by boosted similarity, highest first. Boosted similarity is
// never below the raw similarity and never above 1.
func Boost(results []store.SearchResult, question string) []store.SearchResult {
	q := strings.ToLower(question)
	keywords := Keywords(question)

	out := make([]store.SearchResult, len(results))
	for i, r := range results {
		r.Similarity = min(1, r.RawSimilarity+boostFor(r, q, keywords))
		out[i] = r
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	return out
}

func boostFor(r store.SearchResult, question string, keywords []string) float64 {
	file := strings.ToLower(r.FileName)
	summary := strings.ToLower(r.Summary)

	var boost float64
	for _, kw := range keywords {
		if strings.Contains(file, kw) {
			boost += keywordFileBoost
		}
		if strings.Contains(summary, kw) {
			boost += keywordSummaryBoost
		}
	}
	for _, p := range topicPatterns {
		if strings.Contains(question, p.topic) && containsAny(file, p.markers) {
			boost += patternBoost
		}
	}
	if !containsAny(file, []string{"test", "spec"}) {
		boost += implementationBoost
	}
	if !containsAny(file, configMarkers) {
		boost += nonConfigBoost
	}
	return boost
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Directory returns every path segment but the last, or "root" for a file
// at the top level.
func Directory(fileName string) string {
	i := strings.LastIndex(fileName, "/")
	if i <= 0 {
		return "root"
	}
	return fileName[:i]
}

// SelectDiverse walks results in order and keeps at most perDir entries
// from any one directory, stopping at maxCount.
func SelectDiverse(results []store.SearchResult, maxCount, perDir int) []store.SearchResult {
	selected := make([]store.SearchResult, 0, min(maxCount, len(results)))
	counts := map[string]int{}
	for _, r := range results {
		if len(selected) >= maxCount {
			break
		}
		dir := Directory(r.FileName)
		if counts[dir] >= perDir {
			continue
		}
		counts[dir]++
		selected = append(selected, r)
	}
	return selected
}
