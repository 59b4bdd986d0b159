package validate

import (
	"bufio"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/windfall/lecturelens/internal/errors"
)

// sniffLen is how many leading bytes the validator may peek at. Enough
// for every audio container magic number mimetype knows; never a full read.
const sniffLen = 512

// acceptedTypes are the declared content types the service accepts.
var acceptedTypes = map[string]struct{}{
	"audio/mpeg":   {},
	"audio/mp3":    {},
	"audio/wav":    {},
	"audio/x-wav":  {},
	"audio/wave":   {},
	"audio/ogg":    {},
	"audio/flac":   {},
	"audio/x-flac": {},
	"audio/mp4":    {},
	"audio/m4a":    {},
	"audio/x-m4a":  {},
	"audio/aac":    {},
	"audio/webm":   {},
}

// Upload describes an uploaded audio file. Body is buffered so the
// validator can peek at the header bytes without consuming them.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        *bufio.Reader
}

// NewUpload wraps an incoming file in an Upload descriptor.
func NewUpload(filename, contentType string, size int64, body io.Reader) Upload {
	return Upload{
		Filename:    filename,
		ContentType: contentType,
		Size:        size,
		Body:        bufio.NewReaderSize(body, sniffLen),
	}
}

// Validator checks an upload's declared type, size and, optionally, its
// byte signature before any processing begins.
type Validator struct {
	maxBytes int64
	sniff    bool
}

// New creates a validator.
func New(maxBytes int64, sniffContent bool) *Validator {
	return &Validator{
		maxBytes: maxBytes,
		sniff:    sniffContent,
	}
}

// Validate runs the checks in order: declared content type, size, byte
// signature. The first failing check determines the error; there is no
// partial recovery. The only side effect is a bounded peek at the header.
func (v *Validator) Validate(u Upload) error {
	mediaType := u.ContentType
	if parsed, _, err := mime.ParseMediaType(u.ContentType); err == nil {
		mediaType = parsed
	}
	if _, ok := acceptedTypes[strings.ToLower(mediaType)]; !ok {
		return errors.Validation(fmt.Sprintf("unsupported content type %q, expected an audio type", u.ContentType))
	}

	if u.Size > v.maxBytes {
		return errors.Validation(fmt.Sprintf("file size %d bytes exceeds maximum of %d bytes", u.Size, v.maxBytes))
	}
	if u.Size == 0 {
		return errors.Validation("uploaded file is empty")
	}

	if v.sniff {
		header, err := u.Body.Peek(sniffLen)
		if err != nil && err != io.EOF {
			return errors.InternalWrap("failed to read file header", err)
		}
		if mt := mimetype.Detect(header); !isAudioContainer(mt) {
			return errors.Validation(fmt.Sprintf("file content does not match a known audio format (detected %s)", mt.String()))
		}
	}

	return nil
}

// isAudioContainer walks the detected MIME hierarchy looking for an audio
// type. MP4 and WebM containers are allowed since audio-only files in
// those containers sniff as video/*.
func isAudioContainer(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		s := m.String()
		if strings.HasPrefix(s, "audio/") {
			return true
		}
		if s == "video/mp4" || s == "video/webm" {
			return true
		}
	}
	return false
}
