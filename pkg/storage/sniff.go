package storage

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

const sniffLen = 3072

// Detected is the sniffed content type of an upload.
type Detected struct {
	ContentType string
	Extension   string
	// Body replays the sniffed header followed by the remaining stream.
	Body io.Reader
}

// SniffImage inspects the leading bytes of r and rejects anything that is
// not an image, regardless of the client supplied Content-Type.
func SniffImage(r io.Reader) (*Detected, error) {
	header := make([]byte, sniffLen)
	n, err := io.ReadFull(r, header)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unable to read upload")
	}
	if n == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "upload is empty")
	}
	header = header[:n]

	mt := mimetype.Detect(header)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "only image uploads are allowed").
			WithDetails(map[string]any{"detected": mt.String()})
	}
	return &Detected{
		ContentType: mt.String(),
		Extension:   mt.Extension(),
		Body:        io.MultiReader(bytes.NewReader(header), r),
	}, nil
}
