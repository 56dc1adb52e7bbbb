package toc

import (
	"mime"
	"path"
	"strings"
)

// DefaultMimeType is reported for names with no known extension.
const DefaultMimeType = "application/octet-stream"

// knownTypes is consulted before the platform MIME table so listings do
// not depend on the host's /etc/mime.types.
var knownTypes = map[string]string{
	".txt":  "text/plain",
	".text": "text/plain",
	".log":  "text/plain",
	".md":   "text/markdown",
	".csv":  "text/csv",
	".tsv":  "text/tab-separated-values",
	".htm":  "text/html",
	".html": "text/html",
	".css":  "text/css",
	".js":   "text/javascript",
	".json": "application/json",
	".xml":  "application/xml",
	".yaml": "application/yaml",
	".yml":  "application/yaml",
	".pdf":  "application/pdf",
	".zip":  "application/zip",
	".gz":   "application/gzip",
	".tar":  "application/x-tar",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".webp": "image/webp",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".mp4":  "video/mp4",
	".py":   "text/x-python",
}

// MimeType guesses the media type of a file from its extension.
func MimeType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		return DefaultMimeType
	}
	if t, ok := knownTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if mt, _, err := mime.ParseMediaType(t); err == nil {
			return mt
		}
		return t
	}
	return DefaultMimeType
}
