package relay

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Transformer maps an InboundMessage to one or more destination payloads,
// chunking content that exceeds the destination's size limit.
type Transformer struct {
	maxBytes int
}

// NewTransformer creates a Transformer that caps each payload at maxBytes
// bytes of UTF-8 text.
func NewTransformer(maxBytes int) *Transformer {
	return &Transformer{maxBytes: maxBytes}
}

// Transform produces the ordered payload sequence for one message.
//
// Each chunk is formatted as "{channel}: {author}: {slice}". The content
// slices partition the original content exactly, cut on whitespace
// boundaries where possible and never inside a multi-byte rune, so
// concatenating the slices reconstructs the content. Attachment URLs are
// appended one per line to the final chunk, spilling into trailing chunks
// when they do not fit. A message with empty content and no attachments
// yields no payloads.
func (t *Transformer) Transform(msg *InboundMessage) []OutboundPayload {
	if msg.Content == "" && len(msg.Attachments) == 0 {
		return nil
	}

	prefix := msg.ChannelID + ": " + msg.Author + ": "
	avail := t.maxBytes - len(prefix)
	if avail < 1 {
		avail = 1
	}

	texts := make([]string, 0, 1)
	for _, slice := range splitContent(msg.Content, avail) {
		texts = append(texts, prefix+slice)
	}
	if len(texts) == 0 {
		// Attachment-only message: the first chunk carries just the header.
		texts = append(texts, strings.TrimRight(prefix, " "))
	}

	for _, att := range msg.Attachments {
		last := texts[len(texts)-1]
		if len(last)+1+len(att.URL) <= t.maxBytes {
			texts[len(texts)-1] = last + "\n" + att.URL
			continue
		}
		texts = append(texts, strings.TrimRight(prefix, " ")+"\n"+att.URL)
	}

	payloads := make([]OutboundPayload, len(texts))
	for i, text := range texts {
		payloads[i] = OutboundPayload{Kind: KindText, Text: text}
	}
	return payloads
}

// splitContent cuts s into the fewest ordered slices of at most limit bytes
// each. Slices are exact substrings of s: concatenating them yields s back.
// Cuts land just after the last whitespace rune inside the window when one
// exists, and never inside a multi-byte rune.
func splitContent(s string, limit int) []string {
	if s == "" {
		return nil
	}

	var out []string
	for len(s) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		if cut == 0 {
			// limit is narrower than the first rune; emit the rune whole.
			_, cut = utf8.DecodeRuneInString(s)
		} else if i := lastSpaceBoundary(s[:cut]); i > 0 {
			cut = i
		}
		out = append(out, s[:cut])
		s = s[cut:]
	}
	return append(out, s)
}

// lastSpaceBoundary returns the byte offset just past the last whitespace
// rune in s, or -1 when s contains no whitespace.
func lastSpaceBoundary(s string) int {
	i := strings.LastIndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return -1
	}
	_, w := utf8.DecodeRuneInString(s[i:])
	return i + w
}
