package memserver

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rmacdonaldsmith/eventstore-go/internal/wire"
)

const defaultCheckpointWindow = 32

// filter selects $all events by stream name or event type. A nil filter
// matches everything.
type filter struct {
	onType   bool
	re       *regexp.Regexp
	prefixes []string

	// window is the number of scanned events between checkpoints
	window uint32
}

func compileFilter(o *wire.FilterOptions) (*filter, error) {
	if o == nil {
		return nil, nil
	}

	f := &filter{onType: o.OnEventType, prefixes: o.Prefixes, window: o.Max}
	if o.Regex != "" {
		re, err := regexp.Compile(o.Regex)
		if err != nil {
			return nil, fmt.Errorf("invalid filter regex: %w", err)
		}
		f.re = re
	}
	if f.window == 0 {
		f.window = defaultCheckpointWindow
	}
	if o.CheckpointIntervalMultiplier > 1 {
		f.window *= o.CheckpointIntervalMultiplier
	}
	return f, nil
}

func (f *filter) match(ev *wire.RecordedEvent) bool {
	if f == nil {
		return true
	}

	subject := string(ev.StreamName)
	if f.onType {
		subject = ev.Metadata[wire.MetadataType]
	}

	if f.re != nil && !f.re.MatchString(subject) {
		return false
	}
	if len(f.prefixes) == 0 {
		return true
	}
	for _, p := range f.prefixes {
		if strings.HasPrefix(subject, p) {
			return true
		}
	}
	return false
}
