package scripthost

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"tradecore/internal/apperrors"
	"tradecore/internal/model"
)

// ReadBufferSize is the fixed read size for every IPC socket read, on both
// the feed/drain sides and the Script Host side.
const ReadBufferSize = 1024

// WriteCandlestick writes one compact JSON Candlestick as a single socket
// write; the Script Host reads at most one per read call.
func WriteCandlestick(w io.Writer, c model.Candlestick) error {
	data, err := json.Marshal(c)
	if err != nil {
		return apperrors.NewParseError("failed to encode candlestick", err)
	}
	if _, err := w.Write(data); err != nil {
		return apperrors.NewStreamError("failed to write candlestick to IPC socket", err)
	}
	return nil
}

// ReadCandlestick reads up to ReadBufferSize bytes and decodes them as a
// single Candlestick. A zero-length read means the peer closed the
// connection; ok is false in that case with no error.
func ReadCandlestick(r io.Reader) (c model.Candlestick, ok bool, err error) {
	buf := make([]byte, ReadBufferSize)
	n, readErr := r.Read(buf)
	if n == 0 {
		if readErr == io.EOF || readErr == nil {
			return model.Candlestick{}, false, nil
		}
		return model.Candlestick{}, false, apperrors.NewStreamError("failed to read candlestick from IPC socket", readErr)
	}

	if jsonErr := json.Unmarshal(buf[:n], &c); jsonErr != nil {
		return model.Candlestick{}, false, apperrors.NewParseError("malformed candlestick frame", jsonErr)
	}
	return c, true, nil
}

// WriteResult writes a decision value as a UTF-8 decimal float string, the
// Script Host's sole response framing.
func WriteResult(w io.Writer, value float64) error {
	text := strconv.FormatFloat(value, 'f', -1, 64)
	if _, err := w.Write([]byte(text)); err != nil {
		return apperrors.NewStreamError("failed to write result to IPC socket", err)
	}
	return nil
}

// ReadResult reads up to ReadBufferSize bytes and parses them as a decimal
// float64. A zero-length read ends the drain task normally (ok is false,
// err is nil); any non-numeric payload is a parse failure the caller treats
// as fatal to the drain task, per the invariant that drain failures are
// fail-fast rather than logged-and-skipped.
func ReadResult(r io.Reader) (value float64, ok bool, err error) {
	buf := make([]byte, ReadBufferSize)
	n, readErr := r.Read(buf)
	if n == 0 {
		if readErr == io.EOF || readErr == nil {
			return 0, false, nil
		}
		return 0, false, apperrors.NewStreamError("failed to read result from IPC socket", readErr)
	}

	text := strings.TrimSpace(string(buf[:n]))
	parsed, parseErr := strconv.ParseFloat(text, 64)
	if parseErr != nil {
		return 0, false, apperrors.NewParseError(fmt.Sprintf("non-numeric script result %q", text), parseErr)
	}
	return parsed, true, nil
}
