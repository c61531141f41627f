package interboard

import (
	"io"
	"sync"
)

// Link is the byte-oriented physical channel between the halves.
// Only the Transport reads or writes it.
type Link interface {
	io.Reader
	io.Writer
}

type pipeEnd struct {
	r *io.PipeReader
	w *io.PipeWriter

	closeOnce sync.Once
}

func (p *pipeEnd) Read(b []byte) (int, error) {
	return p.r.Read(b)
}

func (p *pipeEnd) Write(b []byte) (int, error) {
	return p.w.Write(b)
}

// Close implements io.Closer.
func (p *pipeEnd) Close() error {
	p.closeOnce.Do(func() {
		p.r.Close()
		p.w.Close()
	})
	return nil
}

// Pipe creates two connected in-memory link ends.
func Pipe() (io.ReadWriteCloser, io.ReadWriteCloser) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	return &pipeEnd{r: ar, w: aw}, &pipeEnd{r: br, w: bw}
}
