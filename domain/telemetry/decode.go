package telemetry

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"

	pkgerrors "clickchain/pkg/errors"
)

// DecodeBatch reads a log batch encoded either as a JSON array of events or
// as newline-delimited JSON.
func DecodeBatch(data []byte) ([]RawEvent, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return []RawEvent{}, nil
	}

	if trimmed[0] == '[' {
		var raws []RawEvent
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, pkgerrors.NewValidationError("invalid event array").WithCause(err)
		}
		return raws, nil
	}

	raws := make([]RawEvent, 0)
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var raw RawEvent
		if err := json.Unmarshal(text, &raw); err != nil {
			return nil, pkgerrors.NewValidationError(fmt.Sprintf("invalid event on line %d", line)).WithCause(err)
		}
		raws = append(raws, raw)
	}
	if err := scanner.Err(); err != nil {
		return nil, pkgerrors.NewValidationError("unreadable event stream").WithCause(err)
	}
	return raws, nil
}
