package scanner

import "strings"

// mediaTypeExtensions maps catalog media types to the file extensions that
// produce them. Extensions are lowercase and include the dot.
var mediaTypeExtensions = map[string][]string{
	"raw_image": {".dng", ".cr2", ".cr3", ".nef", ".arw", ".raf", ".orf", ".rw2", ".raw"},
	"jpeg":      {".jpg", ".jpeg"},
	"png":       {".png"},
	"tiff":      {".tif", ".tiff"},
	"heic":      {".heic", ".heif"},
	"video":     {".mp4", ".mov", ".avi"},
}

// extensionToType is the inverted lookup, built once at init
var extensionToType = func() map[string]string {
	m := make(map[string]string)
	for mediaType, exts := range mediaTypeExtensions {
		for _, ext := range exts {
			m[ext] = mediaType
		}
	}
	return m
}()

// MediaTypeForExtension returns the media type for a file extension, or ""
// when the extension is not a cataloged media format
func MediaTypeForExtension(ext string) string {
	return extensionToType[strings.ToLower(ext)]
}

// SupportedExtensions returns every extension the scanner will pick up
func SupportedExtensions() []string {
	exts := make([]string, 0, len(extensionToType))
	for ext := range extensionToType {
		exts = append(exts, ext)
	}
	return exts
}
