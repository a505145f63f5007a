// Package extract turns supported document files into plain text.
package extract

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/localrag/localrag/internal/errors"
	"github.com/localrag/localrag/internal/identity"
)

// SupportedExtensions lists the file extensions localrag can extract.
var SupportedExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".html": true,
	".htm":  true,
	".csv":  true,
	".json": true,
}

// IsSupported reports whether the identity's extension has an extractor.
func IsSupported(id identity.Identity) bool {
	return SupportedExtensions[id.Ext()]
}

// Text extracts plain text from the file behind the identity.
//
// Error semantics matter here: IO failures (open/read) are transient and
// retried next cycle, while format and content failures are permanent for
// the current content signature and recorded as LastError.
func Text(id identity.Identity) (string, error) {
	ext := id.Ext()
	if !SupportedExtensions[ext] {
		return "", errors.New(errors.ErrCodeUnsupportedFormat,
			fmt.Sprintf("no extractor for %s files", ext), nil)
	}

	data, err := os.ReadFile(id.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.New(errors.ErrCodeFileNotFound,
				fmt.Sprintf("file not found: %s", id), err)
		}
		return "", errors.IOError(fmt.Sprintf("cannot read %s", id), err)
	}

	var text string
	switch ext {
	case ".html", ".htm":
		text, err = htmlText(data)
		if err != nil {
			return "", err
		}
	default:
		if !utf8.Valid(data) {
			return "", errors.ExtractionError(
				fmt.Sprintf("%s is not valid UTF-8", id), nil)
		}
		text = string(data)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New(errors.ErrCodeEmptyContent,
			fmt.Sprintf("%s has no extractable text", id), nil)
	}

	return text, nil
}

// htmlText strips markup and returns the visible text of an HTML document.
func htmlText(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(data)))
	if err != nil {
		return "", errors.ExtractionError("cannot parse HTML", err)
	}

	doc.Find("script, style, noscript").Remove()

	var b strings.Builder
	doc.Find("body").Each(func(_ int, sel *goquery.Selection) {
		b.WriteString(sel.Text())
	})
	text := b.String()
	if text == "" {
		// Fragment without a body element.
		text = doc.Text()
	}

	return collapseWhitespace(text), nil
}

// collapseWhitespace folds runs of blank space into single separators
// while preserving paragraph breaks.
func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
