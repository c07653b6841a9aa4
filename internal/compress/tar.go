package compress

import (
	"archive/tar"
	"io"
)

// TarReader implements io.ReadCloser over the first CSV file of a TAR archive.
type TarReader struct {
	source io.Closer
	tr     *tar.Reader
	name   string
}

// NewTarReader advances r to the first regular CSV entry. Unlike zip, tar is
// read as a stream.
func NewTarReader(r io.ReadCloser) (*TarReader, error) {
	tr := tar.NewReader(r)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			r.Close()
			return nil, err
		}
		if header.Typeflag == tar.TypeReg && isCSV(header.Name) {
			return &TarReader{source: r, tr: tr, name: header.Name}, nil
		}
	}

	r.Close()
	return nil, ErrNoCSV
}

func (t *TarReader) Name() string {
	return t.name
}

// Read stops at the end of the current entry.
func (t *TarReader) Read(p []byte) (int, error) {
	return t.tr.Read(p)
}

func (t *TarReader) Close() error {
	return t.source.Close()
}
