package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rmacdonaldsmith/eventstore-go/pkg/event"
)

func printEnvelope(out io.Writer, env event.Envelope, pretty bool) {
	ev := env.Event
	fmt.Fprintf(out, "%s@%d %s\n", ev.StreamID, ev.Revision, ev.Type)
	fmt.Fprintf(out, "   ID: %s\n", ev.ID)
	if env.Commit != nil {
		fmt.Fprintf(out, "   Position: %s\n", env.Commit)
	}
	if !ev.Created.IsZero() {
		fmt.Fprintf(out, "   Created: %s\n", ev.Created.Format("2006-01-02 15:04:05.000"))
	}
	if env.Link != nil {
		fmt.Fprintf(out, "   Link: %s@%d\n", env.Link.StreamID, env.Link.Revision)
	}
	if env.RetryCount > 0 {
		fmt.Fprintf(out, "   Retries: %d\n", env.RetryCount)
	}
	fmt.Fprintf(out, "   Data: %s\n", formatData(ev.Data, pretty))
}

func formatData(data []byte, pretty bool) string {
	if len(data) == 0 {
		return "null"
	}
	if !pretty || !json.Valid(data) {
		return string(data)
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "         ", "  "); err != nil {
		return string(data)
	}
	return buf.String()
}
