package cwl

import "strings"

// Supported URI schemes for File locations.
const (
	SchemeFile  = "file"
	SchemeHTTPS = "https"
	SchemeHTTP  = "http"
	SchemeS3    = "s3"
)

// ParseLocationScheme extracts the scheme from a location URI.
// Returns ("file", "/data/x.fastq.gz") for "file:///data/x.fastq.gz".
// Returns ("", raw) for bare strings with no scheme.
func ParseLocationScheme(location string) (scheme, path string) {
	if i := strings.Index(location, "://"); i > 0 {
		scheme = strings.ToLower(location[:i])
		path = location[i+3:]
		// Normalize: file:///path -> /path
		if scheme == SchemeFile {
			path = "/" + strings.TrimLeft(path, "/")
		}
		return scheme, path
	}
	return "", location
}

// BuildLocation constructs a scheme://path URI.
func BuildLocation(scheme, path string) string {
	return scheme + "://" + path
}

// FileObject returns a CWL File object for a local path.
func FileObject(path string) map[string]any {
	return map[string]any{
		"class":    "File",
		"location": BuildLocation(SchemeFile, path),
		"path":     path,
		"basename": basename(path),
	}
}

// DirectoryObject returns a CWL Directory object for a local path.
func DirectoryObject(path string) map[string]any {
	return map[string]any{
		"class":    "Directory",
		"location": BuildLocation(SchemeFile, path),
		"path":     path,
		"basename": basename(path),
	}
}

func basename(path string) string {
	path = strings.TrimRight(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}
