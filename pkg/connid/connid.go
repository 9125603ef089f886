// Package connid implements the three-word / nine-digit encoding of
// a wtypes.ConnectionId described in spec.md §4.1.
//
// The pack this repository was built from does not ship a 16384-word
// dictionary asset. adjectives.txt and nouns.txt each hold 128
// hand-curated, hyphen-free entries; init combines every (adjective,
// noun) pair into a single hyphen-free word, producing exactly 16384
// deterministic, stable dictionary entries. See DESIGN.md.
package connid

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"github.com/worldhost/server/pkg/wtypes"
)

//go:embed adjectives.txt
var adjectivesAsset string

//go:embed nouns.txt
var nounsAsset string

const (
	wordShift = 14
	wordMask  = (1 << wordShift) - 1
	wordCount = 1 << wordShift // 16384
)

var (
	wordsByIndex [wordCount]string
	indexByWord  map[string]uint16
)

func loadLines(asset string) []string {
	var out []string
	for _, line := range strings.Split(asset, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		out = append(out, line)
	}
	return out
}

func init() {
	adjectives := loadLines(adjectivesAsset)
	nouns := loadLines(nounsAsset)
	if len(adjectives) != 128 || len(nouns) != 128 {
		panic(fmt.Sprintf("connid: expected 128 adjectives and 128 nouns, got %d and %d", len(adjectives), len(nouns)))
	}
	indexByWord = make(map[string]uint16, wordCount)
	i := 0
	for _, a := range adjectives {
		for _, n := range nouns {
			w := a + n
			wordsByIndex[i] = w
			indexByWord[strings.ToLower(w)] = uint16(i)
			i++
		}
	}
	if i != wordCount {
		panic("connid: dictionary did not generate 16384 entries")
	}
}

// ParseError describes why a ConnectionId string failed to parse,
// matching the reference implementation's error text.
type ParseError struct {
	msg string
}

func (e *ParseError) Error() string { return e.msg }

func errIncorrectWords(n int) error {
	return &ParseError{fmt.Sprintf("Three words are expected. Found %d words.", n)}
}

func errIncorrectShort(n int) error {
	return &ParseError{fmt.Sprintf("Expected nine digit short connection ID, found %d digits.", n)}
}

func errUnknownWord(w string) error {
	return &ParseError{fmt.Sprintf("Unknown word %s.", w)}
}

// Parse decodes either the three-word form or the legacy nine-digit
// base-36 short form.
func Parse(s string) (wtypes.ConnectionId, error) {
	words := strings.Split(s, "-")
	if len(words) != 3 {
		if len(words) != 1 {
			return 0, errIncorrectWords(len(words))
		}
		word := words[0]
		if len(word) != 9 {
			return 0, errIncorrectShort(len(word))
		}
		v, err := strconv.ParseUint(word, 36, 64)
		if err != nil {
			return 0, err
		}
		return wtypes.ConnectionId(v), nil
	}
	var result uint64
	var shift uint
	for _, word := range words {
		idx, ok := indexByWord[strings.ToLower(word)]
		if !ok {
			return 0, errUnknownWord(word)
		}
		result |= uint64(idx) << shift
		shift += wordShift
	}
	return wtypes.ConnectionId(result), nil
}

// Render always emits the three-word form, per spec.md §4.1.
func Render(c wtypes.ConnectionId) string {
	v := uint64(c)
	first := v & wordMask
	second := (v >> wordShift) & wordMask
	third := (v >> wordShift >> wordShift) & wordMask
	return fmt.Sprintf("%s-%s-%s", wordsByIndex[first], wordsByIndex[second], wordsByIndex[third])
}
