package pipeline

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// Response is the buffered response of one exchange. Nothing reaches the
// client until the owning Context is committed, so any middleware may still
// rewrite status, headers or body during its after-phase.
type Response struct {
	status int
	header http.Header
	body   bytes.Buffer
}

func newResponse() *Response {
	return &Response{header: make(http.Header)}
}

// Header returns the response header map. Last write per key wins.
func (r *Response) Header() http.Header {
	return r.header
}

// Status returns the status code set so far, 0 if none was set.
func (r *Response) Status() int {
	return r.status
}

// SetStatus sets the status code. Later calls overwrite earlier ones.
func (r *Response) SetStatus(code int) {
	r.status = code
}

// WriteHeader implements http.ResponseWriter.
func (r *Response) WriteHeader(code int) {
	r.status = code
}

// Write implements http.ResponseWriter; writing without a status implies 200.
func (r *Response) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(p)
}

// WriteString sets the status and writes s as the body, defaulting the
// content type to plain text.
func (r *Response) WriteString(code int, s string) error {
	if r.header.Get("Content-Type") == "" {
		r.header.Set("Content-Type", "text/plain; charset=utf-8")
	}
	r.status = code
	_, err := r.body.WriteString(s)
	return err
}

// JSON encodes v compactly as the body and sets a JSON content type.
func (r *Response) JSON(code int, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	r.header.Set("Content-Type", "application/json; charset=utf-8")
	r.status = code
	_, err = r.body.Write(b)
	return err
}

// Body returns the buffered body. The slice is only valid until the next write.
func (r *Response) Body() []byte {
	return r.body.Bytes()
}

// Len returns the number of buffered body bytes.
func (r *Response) Len() int {
	return r.body.Len()
}

// Reset discards status, headers and body.
func (r *Response) Reset() {
	r.status = 0
	r.header = make(http.Header)
	r.body.Reset()
}

// effectiveStatus is what goes on the wire: unset means 200.
func (r *Response) effectiveStatus() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

// EffectiveStatus reports the status the client would see if the response
// were committed now.
func (r *Response) EffectiveStatus() int {
	return r.effectiveStatus()
}
