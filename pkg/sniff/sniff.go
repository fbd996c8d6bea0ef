// Package sniff classifies upstream response bodies as playlist text or
// binary media. Classification is best-effort and never fails: callers get
// ContentUnknown plus a safe passthrough content type when nothing matches.
package sniff

import (
	"bytes"
	"strings"

	"streamgate/pkg/types"
)

const (
	// MPEG-TS packets start with a sync byte.
	tsSyncByte = 0x47

	playlistMIME = "mpegurl"
	playlistExt  = ".m3u8"
)

// Result pairs the sniffed kind with the content type to serve it under.
type Result struct {
	Kind        types.ContentKind
	ContentType string
}

// Detect classifies a byte buffer using the declared content type and URL
// as hints. It has no side effects and accepts nil/short buffers.
func Detect(buf []byte, declaredType, urlHint string) Result {
	if isPlaylistHint(declaredType, urlHint) || looksLikePlaylist(buf) {
		return Result{Kind: types.ContentPlaylist, ContentType: "application/vnd.apple.mpegurl"}
	}

	if len(buf) > 0 && buf[0] == tsSyncByte {
		return Result{Kind: types.ContentTransportStream, ContentType: "video/mp2t"}
	}

	// Fragmented MP4 boxes open with a 32-bit big-endian size whose top
	// three bytes are zero for any realistic box length.
	if len(buf) >= 4 && buf[0] == 0 && buf[1] == 0 && buf[2] == 0 {
		return Result{Kind: types.ContentFragmentedMP4, ContentType: "video/mp4"}
	}

	if declaredType != "" {
		return Result{Kind: types.ContentUnknown, ContentType: declaredType}
	}
	return Result{Kind: types.ContentUnknown, ContentType: "application/octet-stream"}
}

func isPlaylistHint(declaredType, urlHint string) bool {
	if strings.Contains(strings.ToLower(declaredType), playlistMIME) {
		return true
	}
	if urlHint == "" {
		return false
	}
	path := urlHint
	if idx := strings.Index(path, "?"); idx > 0 {
		path = path[:idx]
	}
	return strings.HasSuffix(strings.ToLower(path), playlistExt)
}

func looksLikePlaylist(buf []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(buf, " \t\r\n"), []byte("#EXTM3U"))
}
