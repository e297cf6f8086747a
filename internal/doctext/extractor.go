package doctext

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/orgscan/backend/pkg/logger"
)

var whitespace = regexp.MustCompile(`\s+`)

// Extractor turns submitted document bytes into analyzable text. It
// handles HTML and UTF-8 plain text; binary formats (including PDF)
// are the responsibility of an upstream extraction collaborator and
// are rejected here so the pipeline fails the analysis cleanly.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(document []byte) (string, error) {
	if len(bytes.TrimSpace(document)) == 0 {
		return "", fmt.Errorf("document is empty")
	}

	if bytes.HasPrefix(document, []byte("%PDF")) {
		return "", fmt.Errorf("raw PDF input requires an external text extractor")
	}
	if !utf8.Valid(document) {
		return "", fmt.Errorf("document is not valid UTF-8 text")
	}

	content := string(document)

	if looksLikeHTML(content) {
		text, err := stripHTML(content)
		if err != nil {
			return "", err
		}
		if text == "" {
			return "", fmt.Errorf("no text content in HTML document")
		}
		logger.Debug("Extracted text from HTML document", zap.Int("chars", len(text)))
		return text, nil
	}

	text := strings.TrimSpace(content)
	logger.Debug("Extracted plain text document", zap.Int("chars", len(text)))
	return text, nil
}

func looksLikeHTML(content string) bool {
	head := strings.ToLower(content)
	if len(head) > 512 {
		head = head[:512]
	}
	return strings.Contains(head, "<!doctype html") ||
		strings.Contains(head, "<html") ||
		strings.Contains(head, "<body")
}

func stripHTML(content string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML document: %w", err)
	}

	doc.Find("script, style, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	text := doc.Find("body").Text()
	text = whitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text), nil
}
