package wire

import "sync"

// Recognized SETTINGS parameter identifiers. Unknown ids are silently
// ignored on decode.
const (
	SettingHeaderTableSize      uint16 = 0x1
	SettingEnablePush           uint16 = 0x2
	SettingMaxConcurrentStreams uint16 = 0x3
	SettingInitialWindowSize    uint16 = 0x4
	SettingMaxFrameSize         uint16 = 0x5
	SettingMaxHeaderListSize    uint16 = 0x6
)

const (
	DefaultHeaderTableSize   uint32 = 4096
	DefaultConcurrentStreams uint32 = 100
	DefaultInitialWindowSize uint32 = 1<<16 - 1
	DefaultMaxFrameSize      uint32 = 1 << 14
	MaxWindowSize            uint32 = 1<<31 - 1
	MaxFrameSizeLimit        uint32 = 1<<24 - 1
)

// settingsPresence records which parameter ids actually appeared in a
// decoded SETTINGS payload, so callers can distinguish "absent from the
// wire" from "explicitly sent as the Go zero value"; an omitted parameter
// must not overwrite the current value.
type settingsPresence uint8

const (
	presentHeaderTableSize settingsPresence = 1 << iota
	presentEnablePush
	presentMaxConcurrentStreams
	presentInitialWindowSize
	presentMaxFrameSize
	presentMaxHeaderListSize
)

// Settings holds the humanized view of a peer's connection settings.
type Settings struct {
	raw []byte

	HeaderTableSize      uint32
	EnablePush           bool
	MaxConcurrentStreams uint32
	InitialWindowSize    uint32
	MaxFrameSize         uint32
	MaxHeaderListSize    uint32

	present settingsPresence
}

var settingsValuePool = sync.Pool{
	New: func() interface{} {
		return &Settings{
			HeaderTableSize:      DefaultHeaderTableSize,
			EnablePush:           true,
			MaxConcurrentStreams: DefaultConcurrentStreams,
			InitialWindowSize:    DefaultInitialWindowSize,
			MaxFrameSize:         DefaultMaxFrameSize,
		}
	},
}

// AcquireSettingsValue returns a Settings with default values from the pool.
func AcquireSettingsValue() *Settings { return settingsValuePool.Get().(*Settings) }

// ReleaseSettingsValue resets st to defaults and returns it to the pool.
func ReleaseSettingsValue(st *Settings) {
	st.Reset()
	settingsValuePool.Put(st)
}

func (st *Settings) Reset() {
	st.raw = st.raw[:0]
	st.HeaderTableSize = DefaultHeaderTableSize
	st.EnablePush = true
	st.MaxConcurrentStreams = DefaultConcurrentStreams
	st.InitialWindowSize = DefaultInitialWindowSize
	st.MaxFrameSize = DefaultMaxFrameSize
	st.MaxHeaderListSize = 0
	st.present = 0
}

func (st *Settings) CopyTo(dst *Settings) {
	dst.HeaderTableSize = st.HeaderTableSize
	dst.EnablePush = st.EnablePush
	dst.MaxConcurrentStreams = st.MaxConcurrentStreams
	dst.InitialWindowSize = st.InitialWindowSize
	dst.MaxFrameSize = st.MaxFrameSize
	dst.MaxHeaderListSize = st.MaxHeaderListSize
	dst.present = st.present
}

// HasHeaderTableSize reports whether the most recent Decode actually saw a
// HeaderTableSize entry on the wire, as opposed to the field merely holding
// its Go zero value.
func (st *Settings) HasHeaderTableSize() bool { return st.present&presentHeaderTableSize != 0 }

// HasInitialWindowSize reports whether the most recent Decode saw an
// InitialWindowSize entry on the wire.
func (st *Settings) HasInitialWindowSize() bool { return st.present&presentInitialWindowSize != 0 }

// Decode parses a sequence of 6-byte SETTINGS entries into st.
func (st *Settings) Decode(d []byte) {
	for i := 0; i+6 <= len(d); i += 6 {
		key := uint16(d[i])<<8 | uint16(d[i+1])
		value := BytesToUint32(d[i+2 : i+6])
		switch key {
		case SettingHeaderTableSize:
			st.HeaderTableSize = value
			st.present |= presentHeaderTableSize
		case SettingEnablePush:
			st.EnablePush = value != 0
			st.present |= presentEnablePush
		case SettingMaxConcurrentStreams:
			st.MaxConcurrentStreams = value
			st.present |= presentMaxConcurrentStreams
		case SettingInitialWindowSize:
			st.InitialWindowSize = value
			st.present |= presentInitialWindowSize
		case SettingMaxFrameSize:
			st.MaxFrameSize = value
			st.present |= presentMaxFrameSize
		case SettingMaxHeaderListSize:
			st.MaxHeaderListSize = value
			st.present |= presentMaxHeaderListSize
		}
	}
}

// Encode serializes every nonzero numeric field of st, plus EnablePush when
// it is false, into 6-byte entries.
func (st *Settings) Encode() []byte {
	st.raw = st.raw[:0]
	appendEntry := func(id uint16, v uint32) {
		st.raw = append(st.raw, byte(id>>8), byte(id))
		st.raw = AppendUint32(st.raw, v)
	}
	if st.HeaderTableSize != 0 {
		appendEntry(SettingHeaderTableSize, st.HeaderTableSize)
	}
	if !st.EnablePush {
		appendEntry(SettingEnablePush, 0)
	}
	if st.MaxConcurrentStreams != 0 {
		appendEntry(SettingMaxConcurrentStreams, st.MaxConcurrentStreams)
	}
	if st.InitialWindowSize != 0 {
		appendEntry(SettingInitialWindowSize, st.InitialWindowSize)
	}
	if st.MaxFrameSize != 0 {
		appendEntry(SettingMaxFrameSize, st.MaxFrameSize)
	}
	if st.MaxHeaderListSize != 0 {
		appendEntry(SettingMaxHeaderListSize, st.MaxHeaderListSize)
	}
	return st.raw
}

// SettingsFrame is the Frame implementation carrying a SETTINGS payload:
// either an ACK (empty payload, ACK flag) or a list of parameter entries.
type SettingsFrame struct {
	ack    bool
	values Settings
}

var settingsFramePool = sync.Pool{New: func() interface{} { return &SettingsFrame{} }}

func AcquireSettingsFrame() *SettingsFrame { return settingsFramePool.Get().(*SettingsFrame) }

func ReleaseSettingsFrame(s *SettingsFrame) {
	s.Reset()
	settingsFramePool.Put(s)
}

func (s *SettingsFrame) Type() FrameType { return FrameSettings }

func (s *SettingsFrame) Reset() {
	s.ack = false
	s.values.Reset()
}

func (s *SettingsFrame) Ack() bool             { return s.ack }
func (s *SettingsFrame) SetAck(v bool)         { s.ack = v }
func (s *SettingsFrame) Values() *Settings     { return &s.values }
func (s *SettingsFrame) SetValues(v *Settings) { v.CopyTo(&s.values) }

func (s *SettingsFrame) Deserialize(fh *FrameHeader) error {
	s.ack = fh.Flags().Has(FlagAck)
	if s.ack {
		return nil
	}
	s.values.Decode(fh.Payload())
	return nil
}

func (s *SettingsFrame) Serialize(fh *FrameHeader) {
	flags := fh.Flags()
	if s.ack {
		flags |= FlagAck
		fh.SetPayload(nil)
	} else {
		fh.SetPayload(s.values.Encode())
	}
	fh.SetFlags(flags)
}
