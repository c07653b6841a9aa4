package middleware

import (
	"net/http"
	"strings"

	"github.com/drstein77/priceallocator/internal/compress"
)

// ArchiveTypeMiddleware unpacks uploads sent as archives. The archive type
// comes from the archiveType query parameter (zip by default) and applies
// only when Content-Encoding names it; other bodies pass through as is.
func ArchiveTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		archiveType := r.URL.Query().Get("archiveType")
		if archiveType != compress.Tar && archiveType != compress.Zip {
			archiveType = compress.Zip
		}

		if r.Header.Get("Content-Encoding") != archiveType {
			next.ServeHTTP(w, r)
			return
		}

		cr, err := compress.NewReader(archiveType, r.Body)
		if err != nil {
			http.Error(w, "Failed to unpack archive: "+err.Error(), http.StatusBadRequest)
			return
		}
		defer cr.Close()

		r.Body = cr
		r.Header.Del("Content-Encoding")
		next.ServeHTTP(w, r)
	})
}

// CompressResponseMiddleware packs the response into a zip archive holding
// a single file when the client accepts zip.
func CompressResponseMiddleware(fileName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.Contains(r.Header.Get("Accept-Encoding"), compress.Zip) {
				next.ServeHTTP(w, r)
				return
			}

			zw, err := compress.NewZipWriter(w, fileName)
			if err != nil {
				http.Error(w, "Failed to create archive", http.StatusInternalServerError)
				return
			}
			defer zw.Close()

			w.Header().Set("Content-Encoding", compress.Zip)
			next.ServeHTTP(&zipResponseWriter{ResponseWriter: w, zw: zw}, r)
		})
	}
}

type zipResponseWriter struct {
	http.ResponseWriter
	zw *compress.ZipWriter
}

func (z *zipResponseWriter) Write(p []byte) (int, error) {
	return z.zw.Write(p)
}
