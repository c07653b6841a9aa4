// Package compress unpacks CSV uploads from archives and packs responses.
package compress

import (
	"errors"
	"fmt"
	"io"
)

// Supported archive types.
const (
	Zip = "zip"
	Tar = "tar"
)

var (
	ErrNoCSV           = errors.New("CSV file not found in the archive")
	ErrUnsupportedType = errors.New("unsupported archive type")
)

// NewReader returns the first CSV file of an archive of the given type.
func NewReader(archiveType string, r io.ReadCloser) (io.ReadCloser, error) {
	switch archiveType {
	case Zip:
		zr, err := NewZipReader(r)
		if err != nil {
			return nil, err
		}
		return zr, nil
	case Tar:
		tr, err := NewTarReader(r)
		if err != nil {
			return nil, err
		}
		return tr, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, archiveType)
	}
}

