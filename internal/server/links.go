package server

import (
	"html"
	"regexp"
)

// urlPattern matches an http(s) URL, optionally already wrapped in an anchor
// tag. Capture groups: 1 anchor prefix, 2 URL, 3 anchor suffix, 4 anchor
// label. The character class includes ';' so entity-escaped ampersands
// (&amp;) inside query strings stay part of the URL.
var urlPattern = regexp.MustCompile(`(?i)(<a [^>]*href=")?(https?://(?:www\.)?[-a-zA-Z0-9@:%._+~#=]{1,256}\.[a-zA-Z]{2,6}\b[-a-zA-Z0-9@:%_+.~#?&/=;]*)("[^>]*>([^<]*)</a>)?`)

// linkifyURLs rewrites every URL in s into an anchor that opens in a new
// tab. A URL already wrapped in an anchor is rewritten to the same anchor,
// so the transformation is idempotent.
func linkifyURLs(s string) string {
	return urlPattern.ReplaceAllStringFunc(s, func(m string) string {
		parts := urlPattern.FindStringSubmatch(m)
		url := parts[2]
		label := parts[4]
		if label == "" {
			label = url
		}
		return `<a class="styled-a" target="_blank" href="` + url + `">` + label + `</a>`
	})
}

// FormatMessageBody renders a stored message body for delivery: HTML-escape,
// then rewrite URLs into anchors. The same transformation is applied whether
// a message is read from history or pushed over a live connection.
func FormatMessageBody(raw string) string {
	return linkifyURLs(html.EscapeString(raw))
}
