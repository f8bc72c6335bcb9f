package chat

import (
	"regexp"
	"strings"
)

// SegmentKind tells text and image segments apart.
type SegmentKind int

const (
	SegmentText SegmentKind = iota
	SegmentImage
)

// Segment is one piece of a message as the renderers see it.
type Segment struct {
	Kind        SegmentKind
	Text        string // SegmentText only
	Path        string // SegmentImage only
	Description string // SegmentImage only
}

var (
	imageToken   = regexp.MustCompile(`\[IMAGE:([^|\]]+)\|([^\]]*)\]`)
	bareImageURL = regexp.MustCompile(`/static/images/[^\s"'<>()\[\]]+`)
)

// Segments splits message text into plain text and inline images. It
// recognises [IMAGE:path|description] tokens and bare /static/images/... links.
// The result keeps every character of text that is not part of an image.
func Segments(text string) []Segment {
	var out []Segment
	last := 0
	for _, m := range imageToken.FindAllStringSubmatchIndex(text, -1) {
		out = appendText(out, text[last:m[0]])
		out = append(out, Segment{
			Kind:        SegmentImage,
			Path:        strings.TrimSpace(text[m[2]:m[3]]),
			Description: strings.TrimSpace(text[m[4]:m[5]]),
		})
		last = m[1]
	}
	return appendText(out, text[last:])
}

// appendText appends s, turning bare image links into image segments.
func appendText(out []Segment, s string) []Segment {
	last := 0
	for _, m := range bareImageURL.FindAllStringIndex(s, -1) {
		end := m[1]
		// Sentence punctuation after a link is not part of it.
		for end > m[0] && strings.ContainsRune(".,;:!?", rune(s[end-1])) {
			end--
		}
		out = appendPlain(out, s[last:m[0]])
		out = append(out, Segment{Kind: SegmentImage, Path: s[m[0]:end]})
		last = end
	}
	return appendPlain(out, s[last:])
}

func appendPlain(out []Segment, s string) []Segment {
	if s == "" {
		return out
	}
	if n := len(out); n > 0 && out[n-1].Kind == SegmentText {
		out[n-1].Text += s
		return out
	}
	return append(out, Segment{Kind: SegmentText, Text: s})
}

// HasImages reports whether text contains any inline image.
func HasImages(text string) bool {
	return imageToken.MatchString(text) || bareImageURL.MatchString(text)
}
