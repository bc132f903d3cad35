package sandbox

import "bytes"

// limitedWriter keeps the first limit bytes and silently drops the rest.
// Writes never fail, so a chatty program cannot error out the docker client.
type limitedWriter struct {
	buf       bytes.Buffer
	limit     int64
	truncated bool
}

func newLimitedWriter(limit int64) *limitedWriter {
	return &limitedWriter{limit: limit}
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	remaining := w.limit - int64(w.buf.Len())
	if remaining <= 0 {
		w.truncated = w.truncated || len(p) > 0
		return len(p), nil
	}
	if int64(len(p)) > remaining {
		w.buf.Write(p[:remaining])
		w.truncated = true
		return len(p), nil
	}
	w.buf.Write(p)
	return len(p), nil
}

func (w *limitedWriter) String() string {
	return w.buf.String()
}

func (w *limitedWriter) Truncated() bool {
	return w.truncated
}
