package logstream

// PrepareFlags describe how a prepare record participates in its transaction
// and what it carries.
type PrepareFlags uint16

const (
	// FlagSelfCommitted marks a single-record transaction (prepare doubling
	// as its own commit).
	FlagSelfCommitted PrepareFlags = 1 << iota
	// FlagTombstone marks the terminal delete event of a stream.
	FlagTombstone
	// FlagMetadata marks a retention-metadata event.
	FlagMetadata
	// FlagScavengePoint marks a scavenge point record.
	FlagScavengePoint
)

// Has reports whether all bits in f2 are set.
func (f PrepareFlags) Has(f2 PrepareFlags) bool { return f&f2 == f2 }

// Prepare is a user-visible event record as streamed out of a chunk. The
// chunk executor reuses one instance as a read buffer, so holders must copy
// anything they keep across Next calls.
type Prepare struct {
	LogPosition int64
	StreamID    string
	EventNumber int64
	TimestampMs int64
	Flags       PrepareFlags
	EventType   string
	Payload     []byte
}

// IsSelfCommitted reports whether the prepare is its own commit.
func (p *Prepare) IsSelfCommitted() bool { return p.Flags.Has(FlagSelfCommitted) }

// IsTombstone reports whether the prepare deletes its stream.
func (p *Prepare) IsTombstone() bool { return p.Flags.Has(FlagTombstone) }

// IsMetadata reports whether the prepare carries stream metadata.
func (p *Prepare) IsMetadata() bool { return p.Flags.Has(FlagMetadata) }

// IsScavengePoint reports whether the prepare is a scavenge point marker.
func (p *Prepare) IsScavengePoint() bool { return p.Flags.Has(FlagScavengePoint) }

// Reset clears the buffer for reuse.
func (p *Prepare) Reset() {
	*p = Prepare{Payload: p.Payload[:0]}
}

// SystemRecord is a non-prepare log record (epoch markers and other engine
// bookkeeping). Scavenge always carries these through rewrites untouched.
type SystemRecord struct {
	LogPosition int64
	Kind        string
	Payload     []byte
}

// Reset clears the buffer for reuse.
func (r *SystemRecord) Reset() {
	*r = SystemRecord{Payload: r.Payload[:0]}
}
