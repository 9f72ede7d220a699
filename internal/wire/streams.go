package wire

import (
	"errors"
)

// ReadDirection orders a read.
type ReadDirection int32

const (
	Forwards  ReadDirection = 0
	Backwards ReadDirection = 1
)

// ReadReq opens a read or a volatile subscription, on one stream or on $all.
// Exactly one of Stream and All is set.
type ReadReq struct {
	Stream       *ReadStreamOptions
	All          *ReadAllOptions
	Direction    ReadDirection
	ResolveLinks bool

	// Count bounds a read; ignored when Subscription is set
	Count        uint64
	Subscription bool

	Filter       *FilterOptions
	UUIDAsString bool
}

// ReadStreamOptions targets a single stream.
type ReadStreamOptions struct {
	StreamName []byte
	Start      StreamStart
}

// ReadAllOptions targets $all.
type ReadAllOptions struct {
	Start AllStart
}

var errNoReadTarget = errors.New("read request has neither stream nor all options")

func (m *ReadReq) Marshal() ([]byte, error) {
	if (m.Stream == nil) == (m.All == nil) {
		return nil, errNoReadTarget
	}
	var e encoder
	e.message(1, func(o *encoder) {
		if m.Stream != nil {
			o.message(1, func(s *encoder) {
				encodeStreamIdentifier(s, 1, m.Stream.StreamName)
				switch m.Stream.Start.Kind {
				case FromRevision:
					s.varint(2, m.Stream.Start.Revision)
				case FromEnd:
					s.empty(4)
				default:
					s.empty(3)
				}
			})
		} else {
			o.message(2, func(a *encoder) {
				switch m.All.Start.Kind {
				case FromPosition:
					a.message(1, m.All.Start.Position.encode)
				case FromEnd:
					a.empty(3)
				default:
					a.empty(2)
				}
			})
		}
		o.int32(3, int32(m.Direction))
		o.bool(4, m.ResolveLinks)
		if m.Subscription {
			o.empty(6)
		} else {
			o.varint(5, m.Count)
		}
		if m.Filter != nil {
			o.message(7, m.Filter.encode)
		} else {
			o.empty(8)
		}
		o.message(9, func(u *encoder) {
			if m.UUIDAsString {
				u.empty(2)
			} else {
				u.empty(1)
			}
		})
	})
	return e.buf, nil
}

func (m *ReadReq) Unmarshal(data []byte) error {
	*m = ReadReq{}
	return decode("ReadReq", data, func(f field) error {
		if f.num != 1 {
			return nil
		}
		return f.toMessage(func(b []byte) error {
			return walk(b, m.decodeOption)
		})
	})
}

func (m *ReadReq) decodeOption(f field) error {
	switch f.num {
	case 1:
		m.Stream = &ReadStreamOptions{}
		return f.toMessage(func(b []byte) error {
			return walk(b, func(s field) error {
				switch s.num {
				case 1:
					return decodeStreamIdentifier(s, &m.Stream.StreamName)
				case 2:
					m.Stream.Start.Kind = FromRevision
					return s.toUint64(&m.Stream.Start.Revision)
				case 3:
					m.Stream.Start.Kind = FromStart
				case 4:
					m.Stream.Start.Kind = FromEnd
				}
				return nil
			})
		})
	case 2:
		m.All = &ReadAllOptions{}
		return f.toMessage(func(b []byte) error {
			return walk(b, func(a field) error {
				switch a.num {
				case 1:
					m.All.Start.Kind = FromPosition
					return a.toMessage(m.All.Start.Position.decode)
				case 2:
					m.All.Start.Kind = FromStart
				case 3:
					m.All.Start.Kind = FromEnd
				}
				return nil
			})
		})
	case 3:
		var d int32
		err := f.toInt32(&d)
		m.Direction = ReadDirection(d)
		return err
	case 4:
		return f.toBool(&m.ResolveLinks)
	case 5:
		return f.toUint64(&m.Count)
	case 6:
		m.Subscription = true
	case 7:
		m.Filter = &FilterOptions{}
		return f.toMessage(m.Filter.decode)
	case 9:
		return f.toMessage(func(b []byte) error {
			return walk(b, func(u field) error {
				m.UUIDAsString = u.num == 2
				return nil
			})
		})
	}
	return nil
}

// ReadRespKind tells which member of a ReadResp the server sent.
type ReadRespKind int

const (
	RespUnknown ReadRespKind = iota
	RespEvent
	RespConfirmation
	RespCheckpoint
	RespStreamNotFound
	RespFirstStreamPosition
	RespLastStreamPosition
	RespLastAllStreamPosition
	RespCaughtUp
	RespFellBehind
)

func (k ReadRespKind) String() string {
	switch k {
	case RespEvent:
		return "event"
	case RespConfirmation:
		return "confirmation"
	case RespCheckpoint:
		return "checkpoint"
	case RespStreamNotFound:
		return "stream_not_found"
	case RespFirstStreamPosition:
		return "first_stream_position"
	case RespLastStreamPosition:
		return "last_stream_position"
	case RespLastAllStreamPosition:
		return "last_all_stream_position"
	case RespCaughtUp:
		return "caught_up"
	case RespFellBehind:
		return "fell_behind"
	default:
		return "unknown"
	}
}

// ReadResp is one message of a read or volatile subscription.
type ReadResp struct {
	Kind ReadRespKind

	Event          *ReadEvent
	SubscriptionID string
	Checkpoint     Position
	NotFoundStream []byte

	// StreamRevision is set for first/last stream position messages
	StreamRevision uint64

	// AllPosition is set for last_all_stream_position messages
	AllPosition Position
}

func (m *ReadResp) Marshal() ([]byte, error) {
	var e encoder
	switch m.Kind {
	case RespEvent:
		if m.Event == nil {
			return nil, errors.New("event response without event")
		}
		e.message(1, m.Event.encode)
	case RespConfirmation:
		e.message(2, func(c *encoder) { c.string(1, m.SubscriptionID) })
	case RespCheckpoint:
		e.message(3, m.Checkpoint.encode)
	case RespStreamNotFound:
		e.message(4, func(n *encoder) { encodeStreamIdentifier(n, 1, m.NotFoundStream) })
	case RespFirstStreamPosition:
		e.varint(5, m.StreamRevision)
	case RespLastStreamPosition:
		e.varint(6, m.StreamRevision)
	case RespLastAllStreamPosition:
		e.message(7, m.AllPosition.encode)
	case RespCaughtUp:
		e.empty(8)
	case RespFellBehind:
		e.empty(9)
	}
	return e.buf, nil
}

func (m *ReadResp) Unmarshal(data []byte) error {
	*m = ReadResp{}
	return decode("ReadResp", data, func(f field) error {
		switch f.num {
		case 1:
			m.Kind = RespEvent
			m.Event = &ReadEvent{}
			return f.toMessage(m.Event.decode)
		case 2:
			m.Kind = RespConfirmation
			return f.toMessage(func(b []byte) error {
				return walk(b, func(c field) error {
					if c.num == 1 {
						return c.toString(&m.SubscriptionID)
					}
					return nil
				})
			})
		case 3:
			m.Kind = RespCheckpoint
			return f.toMessage(m.Checkpoint.decode)
		case 4:
			m.Kind = RespStreamNotFound
			return f.toMessage(func(b []byte) error {
				return walk(b, func(n field) error {
					if n.num == 1 {
						return decodeStreamIdentifier(n, &m.NotFoundStream)
					}
					return nil
				})
			})
		case 5:
			m.Kind = RespFirstStreamPosition
			return f.toUint64(&m.StreamRevision)
		case 6:
			m.Kind = RespLastStreamPosition
			return f.toUint64(&m.StreamRevision)
		case 7:
			m.Kind = RespLastAllStreamPosition
			return f.toMessage(m.AllPosition.decode)
		case 8:
			m.Kind = RespCaughtUp
		case 9:
			m.Kind = RespFellBehind
		}
		return nil
	})
}

// ReadEvent carries an event and, for resolved links, the link itself.
type ReadEvent struct {
	Event *RecordedEvent
	Link  *RecordedEvent

	CommitPosition    uint64
	HasCommitPosition bool

	// RetryCount is only sent on persistent subscriptions
	RetryCount    int32
	HasRetryCount bool
}

func (m *ReadEvent) encode(e *encoder) {
	if m.Event != nil {
		e.message(1, m.Event.encode)
	}
	if m.Link != nil {
		e.message(2, m.Link.encode)
	}
	if m.HasCommitPosition {
		e.varint(3, m.CommitPosition)
	} else {
		e.empty(4)
	}
	if m.HasRetryCount {
		e.varint(5, uint64(int64(m.RetryCount)))
	}
}

func (m *ReadEvent) decode(b []byte) error {
	return walk(b, func(f field) error {
		switch f.num {
		case 1:
			m.Event = &RecordedEvent{}
			return f.toMessage(m.Event.decode)
		case 2:
			m.Link = &RecordedEvent{}
			return f.toMessage(m.Link.decode)
		case 3:
			m.HasCommitPosition = true
			return f.toUint64(&m.CommitPosition)
		case 4:
			m.HasCommitPosition = false
		case 5:
			m.HasRetryCount = true
			return f.toInt32(&m.RetryCount)
		case 6:
			m.HasRetryCount = false
		}
		return nil
	})
}

// System metadata keys carried in RecordedEvent.Metadata.
const (
	MetadataType        = "type"
	MetadataContentType = "content-type"
	MetadataCreated     = "created"
)

// RecordedEvent is an event as stored by the server.
type RecordedEvent struct {
	ID             UUID
	StreamName     []byte
	Revision       uint64
	Prepare        uint64
	Commit         uint64
	Metadata       map[string]string
	CustomMetadata []byte
	Data           []byte
}

func (m *RecordedEvent) encode(e *encoder) {
	e.message(1, m.ID.encode)
	encodeStreamIdentifier(e, 2, m.StreamName)
	e.uint64(3, m.Revision)
	e.uint64(4, m.Prepare)
	e.uint64(5, m.Commit)
	e.stringMap(6, m.Metadata)
	e.bytes(7, m.CustomMetadata)
	e.bytes(8, m.Data)
}

func (m *RecordedEvent) decode(b []byte) error {
	m.Metadata = make(map[string]string)
	return walk(b, func(f field) error {
		switch f.num {
		case 1:
			return f.toMessage(m.ID.decode)
		case 2:
			return decodeStreamIdentifier(f, &m.StreamName)
		case 3:
			return f.toUint64(&m.Revision)
		case 4:
			return f.toUint64(&m.Prepare)
		case 5:
			return f.toUint64(&m.Commit)
		case 6:
			return f.toMapEntry(m.Metadata)
		case 7:
			return f.toBytes(&m.CustomMetadata)
		case 8:
			return f.toBytes(&m.Data)
		}
		return nil
	})
}

// AppendReq is one message of an append. The first message carries Options,
// every following one a ProposedMessage.
type AppendReq struct {
	Options  *AppendOptions
	Proposed *ProposedMessage
}

// AppendOptions names the stream and its expected state.
type AppendOptions struct {
	StreamName []byte
	Expected   Expected
}

// ProposedMessage is an event to be appended.
type ProposedMessage struct {
	ID             UUID
	Metadata       map[string]string
	CustomMetadata []byte
	Data           []byte
}

func (m *AppendReq) Marshal() ([]byte, error) {
	var e encoder
	switch {
	case m.Options != nil:
		e.message(1, func(o *encoder) {
			encodeStreamIdentifier(o, 1, m.Options.StreamName)
			m.Options.Expected.encode(o)
		})
	case m.Proposed != nil:
		e.message(2, func(p *encoder) {
			p.message(1, m.Proposed.ID.encode)
			p.stringMap(2, m.Proposed.Metadata)
			p.bytes(3, m.Proposed.CustomMetadata)
			p.bytes(4, m.Proposed.Data)
		})
	default:
		return nil, errors.New("append request has neither options nor proposed message")
	}
	return e.buf, nil
}

func (m *AppendReq) Unmarshal(data []byte) error {
	*m = AppendReq{}
	return decode("AppendReq", data, func(f field) error {
		switch f.num {
		case 1:
			m.Options = &AppendOptions{}
			return f.toMessage(func(b []byte) error {
				return walk(b, func(o field) error {
					if o.num == 1 {
						return decodeStreamIdentifier(o, &m.Options.StreamName)
					}
					_, err := m.Options.Expected.decodeField(o)
					return err
				})
			})
		case 2:
			m.Proposed = &ProposedMessage{Metadata: make(map[string]string)}
			return f.toMessage(func(b []byte) error {
				return walk(b, func(p field) error {
					switch p.num {
					case 1:
						return p.toMessage(m.Proposed.ID.decode)
					case 2:
						return p.toMapEntry(m.Proposed.Metadata)
					case 3:
						return p.toBytes(&m.Proposed.CustomMetadata)
					case 4:
						return p.toBytes(&m.Proposed.Data)
					}
					return nil
				})
			})
		}
		return nil
	})
}

// AppendResp is the outcome of an append: either Success or WrongExpectedVersion.
type AppendResp struct {
	Success              *AppendSuccess
	WrongExpectedVersion *WrongExpectedVersion
}

// AppendSuccess reports the stream state after a successful append.
type AppendSuccess struct {
	// CurrentRevision is absent when the append wrote nothing to a new stream
	CurrentRevision    uint64
	HasCurrentRevision bool
	Position           *Position
}

// WrongExpectedVersion reports the actual stream state after a failed check.
type WrongExpectedVersion struct {
	CurrentRevision    uint64
	HasCurrentRevision bool
	Expected           Expected
}

func (m *AppendResp) Marshal() ([]byte, error) {
	var e encoder
	switch {
	case m.Success != nil:
		s := m.Success
		e.message(1, func(o *encoder) {
			if s.HasCurrentRevision {
				o.varint(1, s.CurrentRevision)
			} else {
				o.empty(2)
			}
			if s.Position != nil {
				o.message(3, s.Position.encode)
			} else {
				o.empty(4)
			}
		})
	case m.WrongExpectedVersion != nil:
		w := m.WrongExpectedVersion
		e.message(2, func(o *encoder) {
			if w.HasCurrentRevision {
				o.varint(1, w.CurrentRevision)
			} else {
				o.empty(6)
			}
			o.message(7, w.Expected.encode)
		})
	default:
		return nil, errors.New("append response has no result")
	}
	return e.buf, nil
}

func (m *AppendResp) Unmarshal(data []byte) error {
	*m = AppendResp{}
	return decode("AppendResp", data, func(f field) error {
		switch f.num {
		case 1:
			s := &AppendSuccess{}
			m.Success = s
			return f.toMessage(func(b []byte) error {
				return walk(b, func(o field) error {
					switch o.num {
					case 1:
						s.HasCurrentRevision = true
						return o.toUint64(&s.CurrentRevision)
					case 3:
						s.Position = &Position{}
						return o.toMessage(s.Position.decode)
					}
					return nil
				})
			})
		case 2:
			w := &WrongExpectedVersion{}
			m.WrongExpectedVersion = w
			return f.toMessage(func(b []byte) error {
				return walk(b, func(o field) error {
					switch o.num {
					case 1:
						w.HasCurrentRevision = true
						return o.toUint64(&w.CurrentRevision)
					case 7:
						return o.toMessage(func(b []byte) error {
							return walk(b, func(x field) error {
								_, err := w.Expected.decodeField(x)
								return err
							})
						})
					}
					return nil
				})
			})
		}
		return nil
	})
}

// DeleteReq soft-deletes or tombstones a stream, depending on the method it
// is sent to.
type DeleteReq struct {
	StreamName []byte
	Expected   Expected
}

func (m *DeleteReq) Marshal() ([]byte, error) {
	var e encoder
	e.message(1, func(o *encoder) {
		encodeStreamIdentifier(o, 1, m.StreamName)
		m.Expected.encode(o)
	})
	return e.buf, nil
}

func (m *DeleteReq) Unmarshal(data []byte) error {
	*m = DeleteReq{}
	return decode("DeleteReq", data, func(f field) error {
		if f.num != 1 {
			return nil
		}
		return f.toMessage(func(b []byte) error {
			return walk(b, func(o field) error {
				if o.num == 1 {
					return decodeStreamIdentifier(o, &m.StreamName)
				}
				_, err := m.Expected.decodeField(o)
				return err
			})
		})
	})
}

// DeleteResp carries the log position of the delete, when the server reports one.
type DeleteResp struct {
	Position *Position
}

func (m *DeleteResp) Marshal() ([]byte, error) {
	var e encoder
	if m.Position != nil {
		e.message(1, m.Position.encode)
	} else {
		e.empty(2)
	}
	return e.buf, nil
}

func (m *DeleteResp) Unmarshal(data []byte) error {
	*m = DeleteResp{}
	return decode("DeleteResp", data, func(f field) error {
		if f.num == 1 {
			m.Position = &Position{}
			return f.toMessage(m.Position.decode)
		}
		return nil
	})
}
