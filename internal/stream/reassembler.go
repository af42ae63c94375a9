package stream

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/tracktide/tracktide/internal/crypto"
	errpkg "github.com/tracktide/tracktide/internal/errors"
)

// ChunkDecrypter decrypts one enciphered chunk. Output length must equal
// input length.
type ChunkDecrypter interface {
	DecryptChunk(chunk []byte) []byte
}

// ProgressFunc receives cumulative bytes written and the expected total
// (0 when the server did not report a content length).
type ProgressFunc func(written, total int64)

// Reassembler bridges an encrypted network byte stream to a plaintext file
// stream. Chunks arrive in fixed-size units; every PatternPeriod-th chunk is
// enciphered and decrypted, the rest pass through verbatim. Chunks are
// processed strictly in stream order.
type Reassembler struct {
	dec       ChunkDecrypter
	chunkSize int
	period    int
}

// NewReassembler creates a reassembler using the protocol's fixed chunk size
// and encryption pattern.
func NewReassembler(dec ChunkDecrypter) *Reassembler {
	return &Reassembler{
		dec:       dec,
		chunkSize: crypto.ChunkSize,
		period:    crypto.PatternPeriod,
	}
}

// Copy reads src to exhaustion, decrypting the enciphered chunks, and writes
// the plaintext to dst in order. total is the expected stream length, or 0
// when unknown. The context is checked at every chunk boundary so
// cancellation aborts promptly rather than draining the stream.
//
// A stream that ends before total bytes arrive is an incomplete stream
// (retryable); a failure writing dst is a storage failure (fatal).
func (r *Reassembler) Copy(ctx context.Context, dst io.Writer, src io.Reader, total int64, onProgress ProgressFunc) (int64, error) {
	buf := make([]byte, r.chunkSize)
	var written int64

	for chunk := 0; ; chunk++ {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, readErr := io.ReadFull(src, buf)
		if n > 0 {
			data := buf[:n]
			// Only full chunks are enciphered; a short final chunk always
			// passes through.
			if chunk%r.period == 0 && n == r.chunkSize {
				data = r.dec.DecryptChunk(data)
			}
			nw, writeErr := dst.Write(data)
			written += int64(nw)
			if writeErr != nil {
				return written, fmt.Errorf("%w: %v", errpkg.ErrStorage, writeErr)
			}
			if nw != n {
				return written, fmt.Errorf("%w: %v", errpkg.ErrStorage, io.ErrShortWrite)
			}
			if onProgress != nil {
				onProgress(written, total)
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
				if total > 0 && written < total {
					return written, fmt.Errorf("%w: got %d of %d bytes", errpkg.ErrIncompleteStream, written, total)
				}
				return written, nil
			}
			if err := ctx.Err(); err != nil {
				return written, err
			}
			return written, fmt.Errorf("read stream: %w", readErr)
		}
	}
}
