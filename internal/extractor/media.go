package extractor

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/dshills/filesift/pkg/types"
)

var (
	supportedImageExts = []string{"jpg", "jpeg", "png", "gif", "webp"}
	supportedAudioExts = []string{"mp3", "wav", "aac", "flac", "ogg", "m4a", "wma", "amr"}
)

// mediaType sniffs the file's magic number and returns its MIME type and
// normalized extension
func mediaType(path string) (string, string, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "", "", err
	}
	return mt.String(), types.NormalizeExt(mt.Extension()), nil
}

// checkImage verifies by content that path is a supported image and returns
// its MIME type
func checkImage(path string) (string, error) {
	mime, ext, err := mediaType(path)
	if err != nil {
		return "", err
	}
	if !slices.Contains(supportedImageExts, ext) {
		return "", fmt.Errorf("%w: image format %q", types.ErrUnsupported, mime)
	}
	return mime, nil
}

// IsSupportedAudio verifies by content that path is a supported audio format
func IsSupportedAudio(path string) (bool, error) {
	mime, ext, err := mediaType(path)
	if err != nil {
		return false, err
	}
	if slices.Contains(supportedAudioExts, ext) {
		return true, nil
	}
	// Some containers sniff with a generic extension
	return strings.HasPrefix(mime, "audio/"), nil
}
