package services

import (
	"encoding/base64"
	"fmt"
	"log"
	"regexp"
	"strings"
)

var (
	// Markdown images with inline base64 data, as emitted by OCR
	base64ImageRe = regexp.MustCompile(`!\[([^\]]*)\]\(data:image/(png|jpeg|jpg|gif|webp);base64,([^)]+)\)`)
	// Bare base64 runs left behind by OCR
	standaloneBase64Re = regexp.MustCompile(`[A-Za-z0-9+/=]{50,}`)
	latexitRe          = regexp.MustCompile(`(?s)<latexit[^>]*>[^<]*</latexit>`)

	headerFooterRes = []*regexp.Regexp{
		regexp.MustCompile(`(?m)^第\s*\d+\s*页.*$`),
		regexp.MustCompile(`(?mi)^Page\s*\d+.*$`),
		regexp.MustCompile(`(?m)^[-—_]{10,}$`),
	}

	blankLinesRe    = regexp.MustCompile(`\n{3,}`)
	trailingSpaceRe = regexp.MustCompile(`(?m)[ \t]+$`)
)

// EmbeddedImage is an inline image pulled out of OCR text
type EmbeddedImage struct {
	Name        string // e.g. image_1.png
	ContentType string
	Data        []byte
}

// CleanResult holds cleaned text and the images removed from it
type CleanResult struct {
	Text   string
	Images []EmbeddedImage
}

// TextCleaner prepares raw OCR markdown for extraction
type TextCleaner struct {
	// When set, inline images are replaced by markdown references under this
	// path prefix and returned in CleanResult.Images; otherwise they become
	// [IMAGE_n] placeholders
	ImagePrefix string
}

// NewTextCleaner creates a text cleaner
func NewTextCleaner(imagePrefix string) *TextCleaner {
	return &TextCleaner{ImagePrefix: imagePrefix}
}

// Clean strips page furniture and inline binary data from OCR output
func (c *TextCleaner) Clean(text string) CleanResult {
	var result CleanResult
	next := 1

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	text = latexitRe.ReplaceAllString(text, "")

	text = base64ImageRe.ReplaceAllStringFunc(text, func(match string) string {
		groups := base64ImageRe.FindStringSubmatch(match)
		alt, ext, data := groups[1], groups[2], groups[3]
		if ext == "jpeg" {
			ext = "jpg"
		}
		n := next
		next++

		if c.ImagePrefix == "" {
			return fmt.Sprintf("[IMAGE_%d]", n)
		}

		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(data))
		if err != nil {
			log.Printf("TextCleaner: Failed to decode inline image %d: %v", n, err)
			return fmt.Sprintf("[IMAGE_%d]", n)
		}
		name := fmt.Sprintf("image_%d.%s", n, ext)
		result.Images = append(result.Images, EmbeddedImage{
			Name:        name,
			ContentType: "image/" + strings.Replace(ext, "jpg", "jpeg", 1),
			Data:        decoded,
		})
		return fmt.Sprintf("![%s](%s/%s)", alt, strings.TrimSuffix(c.ImagePrefix, "/"), name)
	})

	text = standaloneBase64Re.ReplaceAllStringFunc(text, func(string) string {
		n := next
		next++
		return fmt.Sprintf("[BASE64_%d]", n)
	})

	for _, re := range headerFooterRes {
		text = re.ReplaceAllString(text, "")
	}

	text = trailingSpaceRe.ReplaceAllString(text, "")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")

	result.Text = strings.TrimSpace(text)
	return result
}
