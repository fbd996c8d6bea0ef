// Package playlist rewrites HLS playlists so every sub-resource reference
// routes back through the gateway. Pure text transformation, no network
// access.
package playlist

import (
	"bufio"
	"bytes"
	"net/url"
	"strings"

	"streamgate/pkg/urlutil"
)

// Live upstream playlists never genuinely end; a leaked end-of-list tag
// would make clients stop playback.
const endListTag = "#EXT-X-ENDLIST"

// Context carries what a rewritten URL needs for the next hop to
// re-resolve the resource: the provider route and the headers to present
// upstream.
type Context struct {
	// Provider is the gateway route prefix, e.g. "tv".
	Provider string
	// BaseURL is the absolute URL this playlist was fetched from; relative
	// references resolve against it.
	BaseURL string
	// Headers are propagated onto every rewritten URL as h_ parameters so
	// key/segment fetches present the same Referer/User-Agent upstream.
	Headers map[string]string
}

// Rewriter rewrites playlists to route through one gateway origin.
type Rewriter struct {
	gatewayOrigin string
}

// New creates a rewriter for the given gateway origin (scheme://host[:port],
// no trailing slash).
func New(gatewayOrigin string) *Rewriter {
	return &Rewriter{gatewayOrigin: strings.TrimSuffix(gatewayOrigin, "/")}
}

// Rewrite transforms a playlist line by line. Directive lines pass through
// verbatim except URI attributes (rewritten in place) and the end-of-list
// tag (stripped). Every other non-blank line is a segment or sub-playlist
// reference and is replaced with a gateway-routed URL.
func (rw *Rewriter) Rewrite(manifest []byte, ctx Context) []byte {
	var result bytes.Buffer
	scanner := bufio.NewScanner(bytes.NewReader(manifest))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if trimmed == "" {
			result.WriteString(line + "\n")
			continue
		}

		if strings.HasPrefix(trimmed, "#") {
			if strings.HasPrefix(trimmed, endListTag) {
				continue
			}
			if strings.Contains(line, "URI=") {
				line = rw.rewriteURIAttribute(line, ctx)
			}
			result.WriteString(line + "\n")
			continue
		}

		// Bare line: direct segment or sub-playlist reference.
		absolute := urlutil.Resolve(trimmed, ctx.BaseURL)
		result.WriteString(rw.gatewayURL(absolute, rw.routeFor(trimmed, ""), ctx) + "\n")
	}

	return result.Bytes()
}

// rewriteURIAttribute rewrites the URI="..." attribute of a tag in place,
// leaving the rest of the line untouched.
func (rw *Rewriter) rewriteURIAttribute(line string, ctx Context) string {
	start := strings.Index(line, `URI="`)
	if start == -1 {
		return line
	}
	start += len(`URI="`)

	end := strings.Index(line[start:], `"`)
	if end == -1 {
		return line
	}

	uri := line[start : start+end]
	absolute := urlutil.Resolve(uri, ctx.BaseURL)
	rewritten := rw.gatewayURL(absolute, rw.routeFor(uri, line), ctx)

	return line[:start] + rewritten + line[start+end:]
}

// routeFor picks the gateway sub-route for a reference. Key tags fetch
// decryption keys, playlist references recurse through the playlist route,
// everything else is binary media.
func (rw *Rewriter) routeFor(uri, tagLine string) string {
	if strings.Contains(tagLine, "#EXT-X-KEY") || strings.Contains(tagLine, "#EXT-X-SESSION-KEY") {
		return "key"
	}
	if strings.Contains(strings.ToLower(uri), ".m3u8") || strings.Contains(tagLine, "#EXT-X-MEDIA") || strings.Contains(tagLine, "#EXT-X-I-FRAME-STREAM-INF") {
		return ""
	}
	return "segment"
}

// gatewayURL builds "<origin>/<provider>[/<route>]?url=<abs>&h_K=V...".
func (rw *Rewriter) gatewayURL(absoluteURL, route string, ctx Context) string {
	path := "/" + ctx.Provider
	if route != "" {
		path += "/" + route
	}

	u, err := url.Parse(rw.gatewayOrigin + path)
	if err != nil {
		return absoluteURL
	}

	// url leads the query; header params follow in sorted order.
	headerParams := make(url.Values, len(ctx.Headers))
	for key, value := range ctx.Headers {
		headerParams.Set("h_"+strings.ReplaceAll(key, "-", "_"), value)
	}
	rawQuery := "url=" + url.QueryEscape(absoluteURL)
	if encoded := headerParams.Encode(); encoded != "" {
		rawQuery += "&" + encoded
	}
	u.RawQuery = rawQuery
	return u.String()
}
