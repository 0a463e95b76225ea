package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// decompressFile writes the decompressed form of a saved .gz or .zst file
// next to it, without the suffix, and returns the new path. Other files are
// left alone and an empty path is returned.
func decompressFile(src string) (string, error) {
	var dst string
	switch {
	case strings.HasSuffix(src, ".gz"):
		dst = strings.TrimSuffix(src, ".gz")
	case strings.HasSuffix(src, ".zst"):
		dst = strings.TrimSuffix(src, ".zst")
	default:
		return "", nil
	}

	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	var r io.Reader
	if strings.HasSuffix(src, ".gz") {
		gz, err := gzip.NewReader(in)
		if err != nil {
			return "", fmt.Errorf("decompress %s: %w", src, err)
		}
		defer gz.Close()
		r = gz
	} else {
		zr, err := zstd.NewReader(in)
		if err != nil {
			return "", fmt.Errorf("decompress %s: %w", src, err)
		}
		defer zr.Close()
		r = zr
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return "", fmt.Errorf("decompress %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return dst, nil
}
