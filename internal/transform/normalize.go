// Package transform rewrites recognized text before synthesis: translation with a local
// engine, or fluency cleanup with a hosted chat model.
package transform

import (
	"regexp"
	"strings"
)

const whitespaceRegexPattern = `\s+`

// Normalizer strips wrapper artifacts that language models put around their answer.
type Normalizer struct {
	whitespacePattern *regexp.Regexp
	wrapperReplacer   *strings.Replacer
}

// NewNormalizer creates a Normalizer with compiled patterns.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		whitespacePattern: regexp.MustCompile(whitespaceRegexPattern),
		wrapperReplacer: strings.NewReplacer(
			"\n- ", ", ",
			"\n* ", ", ",
			"\r\n", " ",
		),
	}
}

// Normalize removes code fences, delimiters and surrounding quotes, then collapses
// whitespace to single spaces.
func (n *Normalizer) Normalize(text string) string {
	result := strings.TrimSpace(text)

	for _, fence := range []string{"```text", "```"} {
		result = strings.TrimPrefix(result, fence)
	}

	result = strings.TrimSuffix(strings.TrimSpace(result), "```")
	result = strings.TrimPrefix(strings.TrimSpace(result), `"""`)
	result = strings.TrimSuffix(result, `"""`)
	result = strings.TrimSpace(result)

	if len(result) >= 2 {
		first, last := result[0], result[len(result)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			result = result[1 : len(result)-1]
		}
	}

	result = n.wrapperReplacer.Replace(result)

	return strings.TrimSpace(n.whitespacePattern.ReplaceAllString(result, " "))
}
