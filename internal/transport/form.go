package transport

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"path/filepath"
	"strings"
)

// Form is a multipart body under construction.
type Form struct {
	buf    bytes.Buffer
	writer *multipart.Writer
	err    error
}

// NewForm starts an empty multipart form.
func NewForm() *Form {
	f := &Form{}
	f.writer = multipart.NewWriter(&f.buf)
	return f
}

// AddField adds a plain form value.
func (f *Form) AddField(name, value string) {
	if f.err != nil {
		return
	}
	f.err = f.writer.WriteField(name, value)
}

// AddFile copies r into a file part. The part content type is derived from
// the file extension.
func (f *Form) AddFile(field, filename string, r io.Reader) {
	if f.err != nil {
		return
	}
	if r == nil {
		f.err = fmt.Errorf("form file %s has no data", filepath.Base(filename))
		return
	}
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filepath.Base(filename)))
	h.Set("Content-Type", contentType)

	part, err := f.writer.CreatePart(h)
	if err != nil {
		f.err = fmt.Errorf("create form file: %w", err)
		return
	}
	if _, err := io.Copy(part, r); err != nil {
		f.err = fmt.Errorf("copy file data: %w", err)
	}
}

// close finalises the body and returns it with its content type.
func (f *Form) close() (io.Reader, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	if err := f.writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &f.buf, f.writer.FormDataContentType(), nil
}
