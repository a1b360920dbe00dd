package fakes3

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
)

// chunkedReader decodes an aws-chunked encoded request body:
//
//	<hex-size>[;chunk-signature=<sig>]\r\n
//	<data>\r\n
//	...
//	0[;chunk-signature=<sig>]\r\n
//	[trailer headers]\r\n
//
// The AWS SDK uses this framing for streaming uploads; the signatures
// and trailer checksums are discarded, only the payload matters here.
type chunkedReader struct {
	reader    *bufio.Reader
	remaining int64
	done      bool
}

func newChunkedReader(r io.Reader) *chunkedReader {
	return &chunkedReader{
		reader: bufio.NewReader(r),
	}
}

// Read implements io.Reader.
func (cr *chunkedReader) Read(p []byte) (int, error) {
	if cr.done {
		return 0, io.EOF
	}

	if cr.remaining == 0 {
		if err := cr.readChunkHeader(); err != nil {
			return 0, err
		}
		// Final chunk has size 0; anything after it is trailers.
		if cr.remaining == 0 {
			cr.done = true
			return 0, io.EOF
		}
	}

	toRead := int64(len(p))
	if toRead > cr.remaining {
		toRead = cr.remaining
	}

	n, err := cr.reader.Read(p[:toRead])
	cr.remaining -= int64(n)

	if cr.remaining == 0 && n > 0 {
		// Consume the CRLF after the chunk data.
		_, _ = cr.reader.ReadString('\n')
	}

	if err == io.EOF && !cr.done {
		return n, io.ErrUnexpectedEOF
	}

	return n, err
}

func (cr *chunkedReader) readChunkHeader() error {
	line, err := cr.reader.ReadString('\n')
	if err != nil {
		if err == io.EOF {
			return io.ErrUnexpectedEOF
		}
		return err
	}

	line = strings.TrimSuffix(line, "\r\n")
	line = strings.TrimSuffix(line, "\n")

	sizeStr := line
	if idx := strings.Index(line, ";"); idx >= 0 {
		sizeStr = line[:idx]
	}

	size, err := strconv.ParseInt(sizeStr, 16, 64)
	if err != nil {
		return errors.New("invalid chunk size")
	}

	cr.remaining = size
	return nil
}

// isAWSChunked reports whether a request body uses aws-chunked encoding.
func isAWSChunked(contentEncoding, contentSHA256 string) bool {
	if strings.Contains(contentEncoding, "aws-chunked") {
		return true
	}
	return strings.HasPrefix(contentSHA256, "STREAMING-")
}
