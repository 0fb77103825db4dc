package fragstore

import "strings"

// ExtForMIME selects the fragment file extension for a client-supplied
// container MIME type. Unknown containers get a neutral extension; the
// stitcher decides how to decode them.
func ExtForMIME(mimeType string) string {
	// Recorders frequently append codec parameters ("audio/webm;codecs=opus").
	base := mimeType
	if i := strings.IndexByte(base, ';'); i >= 0 {
		base = base[:i]
	}
	base = strings.ToLower(strings.TrimSpace(base))

	switch base {
	case "audio/webm", "video/webm":
		return ".webm"
	case "audio/ogg", "application/ogg":
		return ".ogg"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a", "video/mp4":
		return ".m4a"
	case "audio/aac":
		return ".aac"
	case "audio/flac", "audio/x-flac":
		return ".flac"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	default:
		return ".bin"
	}
}

// IsWebM reports whether the MIME type names a WebM container. Fragmented
// WebM streams need the stitcher's header-aware strategies.
func IsWebM(mimeType string) bool {
	return ExtForMIME(mimeType) == ".webm"
}

// MIMEForExt is the inverse of [ExtForMIME], used when rebuilding
// fragment metadata from on-disk filenames during crash recovery.
func MIMEForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".webm":
		return "audio/webm"
	case ".ogg":
		return "audio/ogg"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	case ".aac":
		return "audio/aac"
	case ".flac":
		return "audio/flac"
	case ".wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}
