package wire

import "errors"

// NackAction tells the server what to do with negatively acknowledged events.
type NackAction int32

const (
	NackUnknown NackAction = 0
	NackPark    NackAction = 1
	NackRetry   NackAction = 2
	NackSkip    NackAction = 3
	NackStop    NackAction = 4
)

// PersistentReadReq is one message of a persistent subscription session: the
// opening Options, then any number of Ack or Nack batches.
type PersistentReadReq struct {
	Options *PersistentReadOptions
	Ack     *PersistentAck
	Nack    *PersistentNack
}

// PersistentReadOptions names the group to join. A nil StreamName targets $all.
type PersistentReadOptions struct {
	StreamName   []byte
	GroupName    string
	BufferSize   int32
	UUIDAsString bool
}

// PersistentAck acknowledges a batch of events.
type PersistentAck struct {
	SubscriptionID []byte
	IDs            []UUID
}

// PersistentNack rejects a batch of events.
type PersistentNack struct {
	SubscriptionID []byte
	IDs            []UUID
	Action         NackAction
	Reason         string
}

func (m *PersistentReadReq) Marshal() ([]byte, error) {
	var e encoder
	switch {
	case m.Options != nil:
		o := m.Options
		e.message(1, func(x *encoder) {
			if o.StreamName != nil {
				encodeStreamIdentifier(x, 1, o.StreamName)
			} else {
				x.empty(5)
			}
			x.string(2, o.GroupName)
			x.int32(3, o.BufferSize)
			x.message(4, func(u *encoder) {
				if o.UUIDAsString {
					u.empty(2)
				} else {
					u.empty(1)
				}
			})
		})
	case m.Ack != nil:
		e.message(2, func(x *encoder) {
			x.bytes(1, m.Ack.SubscriptionID)
			for _, id := range m.Ack.IDs {
				x.message(2, id.encode)
			}
		})
	case m.Nack != nil:
		e.message(3, func(x *encoder) {
			x.bytes(1, m.Nack.SubscriptionID)
			for _, id := range m.Nack.IDs {
				x.message(2, id.encode)
			}
			x.int32(3, int32(m.Nack.Action))
			x.string(4, m.Nack.Reason)
		})
	default:
		return nil, errors.New("persistent read request is empty")
	}
	return e.buf, nil
}

func (m *PersistentReadReq) Unmarshal(data []byte) error {
	*m = PersistentReadReq{}
	return decode("PersistentReadReq", data, func(f field) error {
		switch f.num {
		case 1:
			o := &PersistentReadOptions{}
			m.Options = o
			return f.toMessage(func(b []byte) error {
				return walk(b, func(x field) error {
					switch x.num {
					case 1:
						return decodeStreamIdentifier(x, &o.StreamName)
					case 2:
						return x.toString(&o.GroupName)
					case 3:
						return x.toInt32(&o.BufferSize)
					case 4:
						return x.toMessage(func(b []byte) error {
							return walk(b, func(u field) error {
								o.UUIDAsString = u.num == 2
								return nil
							})
						})
					}
					return nil
				})
			})
		case 2:
			a := &PersistentAck{}
			m.Ack = a
			return f.toMessage(func(b []byte) error {
				return walk(b, func(x field) error {
					switch x.num {
					case 1:
						return x.toBytes(&a.SubscriptionID)
					case 2:
						var id UUID
						if err := x.toMessage(id.decode); err != nil {
							return err
						}
						a.IDs = append(a.IDs, id)
					}
					return nil
				})
			})
		case 3:
			n := &PersistentNack{}
			m.Nack = n
			return f.toMessage(func(b []byte) error {
				return walk(b, func(x field) error {
					switch x.num {
					case 1:
						return x.toBytes(&n.SubscriptionID)
					case 2:
						var id UUID
						if err := x.toMessage(id.decode); err != nil {
							return err
						}
						n.IDs = append(n.IDs, id)
					case 3:
						var a int32
						err := x.toInt32(&a)
						n.Action = NackAction(a)
						return err
					case 4:
						return x.toString(&n.Reason)
					}
					return nil
				})
			})
		}
		return nil
	})
}

// PersistentReadResp is one message pushed by a persistent subscription.
type PersistentReadResp struct {
	Event *ReadEvent

	// Confirmed is set on the subscription confirmation message
	Confirmed      bool
	SubscriptionID string
}

func (m *PersistentReadResp) Marshal() ([]byte, error) {
	var e encoder
	switch {
	case m.Event != nil:
		e.message(1, m.Event.encode)
	case m.Confirmed:
		e.message(2, func(c *encoder) { c.string(1, m.SubscriptionID) })
	}
	return e.buf, nil
}

func (m *PersistentReadResp) Unmarshal(data []byte) error {
	*m = PersistentReadResp{}
	return decode("PersistentReadResp", data, func(f field) error {
		switch f.num {
		case 1:
			m.Event = &ReadEvent{}
			return f.toMessage(m.Event.decode)
		case 2:
			m.Confirmed = true
			return f.toMessage(func(b []byte) error {
				return walk(b, func(c field) error {
					if c.num == 1 {
						return c.toString(&m.SubscriptionID)
					}
					return nil
				})
			})
		}
		return nil
	})
}

// PersistentSettings configures a persistent subscription group.
type PersistentSettings struct {
	ResolveLinks       bool
	Start              StreamStart
	AllStart           AllStart
	ExtraStatistics    bool
	MessageTimeoutMs   int32
	MaxRetryCount      int32
	LiveBufferSize     int32
	ReadBatchSize      int32
	HistoryBufferSize  int32
	CheckpointAfterMs  int32
	MinCheckpointCount int32
	MaxCheckpointCount int32
	MaxSubscriberCount int32
	ConsumerStrategy   string
}

// CreatePersistentReq creates a persistent subscription group. A nil
// StreamName creates the group on $all.
type CreatePersistentReq struct {
	StreamName []byte
	GroupName  string
	Settings   PersistentSettings
	Filter     *FilterOptions
}

func (m *CreatePersistentReq) Marshal() ([]byte, error) {
	if m.GroupName == "" {
		return nil, errors.New("create persistent subscription without group name")
	}
	var e encoder
	e.message(1, func(o *encoder) {
		if m.StreamName != nil {
			o.message(1, func(s *encoder) {
				encodeStreamIdentifier(s, 1, m.StreamName)
				switch m.Settings.Start.Kind {
				case FromRevision:
					s.varint(2, m.Settings.Start.Revision)
				case FromEnd:
					s.empty(4)
				default:
					s.empty(3)
				}
			})
		} else {
			o.message(2, func(a *encoder) {
				switch m.Settings.AllStart.Kind {
				case FromPosition:
					a.message(1, m.Settings.AllStart.Position.encode)
				case FromEnd:
					a.empty(3)
				default:
					a.empty(2)
				}
				if m.Filter != nil {
					a.message(4, m.Filter.encode)
				} else {
					a.empty(5)
				}
			})
		}
		o.string(3, m.GroupName)
		o.message(4, m.Settings.encode)
	})
	return e.buf, nil
}

func (s PersistentSettings) encode(e *encoder) {
	e.bool(1, s.ResolveLinks)
	e.bool(2, s.ExtraStatistics)
	e.int32(3, s.MaxRetryCount)
	e.int32(4, s.MinCheckpointCount)
	e.int32(5, s.MaxCheckpointCount)
	e.int32(6, s.MaxSubscriberCount)
	e.int32(7, s.LiveBufferSize)
	e.int32(8, s.ReadBatchSize)
	e.int32(9, s.HistoryBufferSize)
	e.int32(10, s.MessageTimeoutMs)
	e.int32(11, s.CheckpointAfterMs)
	e.string(12, s.ConsumerStrategy)
}

func (s *PersistentSettings) decode(b []byte) error {
	return walk(b, func(f field) error {
		switch f.num {
		case 1:
			return f.toBool(&s.ResolveLinks)
		case 2:
			return f.toBool(&s.ExtraStatistics)
		case 3:
			return f.toInt32(&s.MaxRetryCount)
		case 4:
			return f.toInt32(&s.MinCheckpointCount)
		case 5:
			return f.toInt32(&s.MaxCheckpointCount)
		case 6:
			return f.toInt32(&s.MaxSubscriberCount)
		case 7:
			return f.toInt32(&s.LiveBufferSize)
		case 8:
			return f.toInt32(&s.ReadBatchSize)
		case 9:
			return f.toInt32(&s.HistoryBufferSize)
		case 10:
			return f.toInt32(&s.MessageTimeoutMs)
		case 11:
			return f.toInt32(&s.CheckpointAfterMs)
		case 12:
			return f.toString(&s.ConsumerStrategy)
		}
		return nil
	})
}

func (m *CreatePersistentReq) Unmarshal(data []byte) error {
	*m = CreatePersistentReq{}
	return decode("CreatePersistentReq", data, func(f field) error {
		if f.num != 1 {
			return nil
		}
		return f.toMessage(func(b []byte) error {
			return walk(b, func(o field) error {
				switch o.num {
				case 1:
					return o.toMessage(func(b []byte) error {
						return walk(b, func(s field) error {
							switch s.num {
							case 1:
								return decodeStreamIdentifier(s, &m.StreamName)
							case 2:
								m.Settings.Start.Kind = FromRevision
								return s.toUint64(&m.Settings.Start.Revision)
							case 3:
								m.Settings.Start.Kind = FromStart
							case 4:
								m.Settings.Start.Kind = FromEnd
							}
							return nil
						})
					})
				case 2:
					return o.toMessage(func(b []byte) error {
						return walk(b, func(a field) error {
							switch a.num {
							case 1:
								m.Settings.AllStart.Kind = FromPosition
								return a.toMessage(m.Settings.AllStart.Position.decode)
							case 2:
								m.Settings.AllStart.Kind = FromStart
							case 3:
								m.Settings.AllStart.Kind = FromEnd
							case 4:
								m.Filter = &FilterOptions{}
								return a.toMessage(m.Filter.decode)
							}
							return nil
						})
					})
				case 3:
					return o.toString(&m.GroupName)
				case 4:
					return o.toMessage(m.Settings.decode)
				}
				return nil
			})
		})
	})
}

// DeletePersistentReq deletes a persistent subscription group. A nil
// StreamName targets $all.
type DeletePersistentReq struct {
	StreamName []byte
	GroupName  string
}

func (m *DeletePersistentReq) Marshal() ([]byte, error) {
	var e encoder
	e.message(1, func(o *encoder) {
		if m.StreamName != nil {
			encodeStreamIdentifier(o, 1, m.StreamName)
		} else {
			o.empty(3)
		}
		o.string(2, m.GroupName)
	})
	return e.buf, nil
}

func (m *DeletePersistentReq) Unmarshal(data []byte) error {
	*m = DeletePersistentReq{}
	return decode("DeletePersistentReq", data, func(f field) error {
		if f.num != 1 {
			return nil
		}
		return f.toMessage(func(b []byte) error {
			return walk(b, func(o field) error {
				switch o.num {
				case 1:
					return decodeStreamIdentifier(o, &m.StreamName)
				case 2:
					return o.toString(&m.GroupName)
				}
				return nil
			})
		})
	})
}
