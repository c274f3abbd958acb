package types

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// DecodeEvents reads either a JSON array of events or one event per line.
// Blank lines are skipped in the line form.
func DecodeEvents(r io.Reader) ([]Event, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(br)
	dec.DisallowUnknownFields()
	if first == '[' {
		var events []Event
		if err := dec.Decode(&events); err != nil {
			return nil, fmt.Errorf("decode event array: %w", err)
		}
		return events, nil
	}

	var events []Event
	for {
		var e Event
		err := dec.Decode(&e)
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode event %d: %w", len(events)+1, err)
		}
		events = append(events, e)
	}
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}

// EncodeEvents writes events as an indented JSON array, or as JSON lines
// when lines is set.
func EncodeEvents(w io.Writer, events []Event, lines bool) error {
	enc := json.NewEncoder(w)
	if !lines {
		enc.SetIndent("", "  ")
		if events == nil {
			events = []Event{}
		}
		return enc.Encode(events)
	}
	for i := range events {
		if err := enc.Encode(events[i]); err != nil {
			return fmt.Errorf("encode event %d: %w", events[i].Seq, err)
		}
	}
	return nil
}
