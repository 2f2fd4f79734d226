package validators

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"slices"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/viper"
)

var (
	ErrNoFile              = errors.New("no file provided")
	ErrFileTooLarge        = errors.New("file too large")
	ErrFileNameTooLong     = errors.New("file name is too long")
	ErrFileTypeUnsupported = errors.New("unsupported file type")
)

const maxFileNameSize = 255

// ImageValidator checks the declared Content-Type first, which is easy to
// spoof but cheap to reject on, and then sniffs the actual bytes so the
// allow-list can't be bypassed with a forged header. On success the returned
// file is rewound and ready to read, and the sniffed MIME type is the one
// that gets persisted.
func ImageValidator(fh *multipart.FileHeader) (code int, f multipart.File, mime string, err error) {
	if fh == nil {
		return http.StatusBadRequest, nil, "", ErrNoFile
	}

	allowed := viper.GetStringSlice("upload.allowed_types")

	if !slices.Contains(allowed, fh.Header.Get("Content-Type")) {
		return http.StatusBadRequest, nil, "", ErrFileTypeUnsupported
	}

	if len(fh.Filename) > maxFileNameSize {
		return http.StatusBadRequest, nil, "", ErrFileNameTooLong
	}

	if fh.Size > viper.GetInt64("upload.max_size") {
		return http.StatusRequestEntityTooLarge, nil, "", ErrFileTooLarge
	}

	f, err = fh.Open()
	if err != nil {
		return http.StatusInternalServerError, nil, "", err
	}

	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		f.Close()
		return http.StatusInternalServerError, nil, "", err
	}

	if !slices.Contains(allowed, mtype.String()) {
		f.Close()
		return http.StatusBadRequest, nil, "", ErrFileTypeUnsupported
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return http.StatusInternalServerError, nil, "", err
	}

	return 0, f, mtype.String(), nil
}
