package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// uploadExts are the extensions of the image types the backend accepts
var uploadExts = []string{"png", "jpg", "jpeg", "gif", "webp"}

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

// GetFileExtension returns the file extension without the dot
func GetFileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 0 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

// IsUploadable checks if a file has the extension of an uploadable image
func IsUploadable(filename string) bool {
	ext := GetFileExtension(filename)
	for _, e := range uploadExts {
		if ext == e {
			return true
		}
	}
	return false
}

// OutputFilename builds the path of a rendered file for an analysis
func OutputFilename(analysisID, outputDir, suffix, format string) string {
	if format == "" {
		format = "png"
	}
	name := fmt.Sprintf("%s%s.%s", SanitizeFilename(analysisID), suffix, format)
	return filepath.Join(outputDir, name)
}

// ListUploadable lists the uploadable images in dir, recursively, in
// lexical order
func ListUploadable(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && IsUploadable(path) {
			files = append(files, path)
		}
		return nil
	})

	return files, err
}

// FileExists checks if a file exists and is not a directory
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// DirExists checks if a directory exists
func DirExists(dirname string) bool {
	info, err := os.Stat(dirname)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && info.IsDir()
}

// SanitizeFilename removes or replaces invalid characters in filenames
func SanitizeFilename(filename string) string {
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	result := filename

	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}

	result = strings.Trim(result, " .")
	if result == "" {
		result = "analysis"
	}

	return result
}
