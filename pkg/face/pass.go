package face

import "log/slog"

// PassStats summarises one encoding pass.
type PassStats struct {
	// Frames is the number of frames appended to the output.
	Frames int

	// Degraded counts frames whose values were partially rejected by the
	// encoder. They were still encoded from the carried-forward state.
	Degraded int

	// Failed counts frames whose encoding failed outright. Each was replaced
	// by the last good wire frame, or left empty if there was none yet.
	Failed int
}

// Encoded returns the number of frames that produced their own wire frame.
func (s PassStats) Encoded() int {
	return s.Frames - s.Failed
}

// Pass owns one [Encoder] for the duration of a single encoding pass and
// applies the fault policy: an encoding problem with one frame never aborts
// the pass.
//
// Create one Pass per sequence and discard it afterwards. Not safe for
// concurrent use.
type Pass struct {
	enc   Encoder
	last  WireFrame
	stats PassStats
}

// NewPass starts an encoding pass over enc. The pass takes exclusive use of
// enc until it is discarded.
func NewPass(enc Encoder) *Pass {
	return &Pass{enc: enc}
}

// Append applies frame to the encoder, encodes the resulting channel table,
// and appends the wire frame to out. The returned slice must be used in place
// of out, as with the built-in append.
func (p *Pass) Append(out EncodedSequence, frame RawFrame) EncodedSequence {
	index := p.stats.Frames
	p.stats.Frames++

	if err := p.enc.ApplyFrame(frame); err != nil {
		p.stats.Degraded++
		slog.Warn("face: frame partially rejected, keeping previous channel values",
			"frame", index,
			"err", err,
		)
	}

	wire, err := p.enc.Encode()
	if err != nil {
		p.stats.Failed++
		slog.Warn("face: frame encoding failed, substituting previous frame",
			"frame", index,
			"have_previous", p.last != nil,
			"err", err,
		)
		return append(out, p.last)
	}

	p.last = wire
	return append(out, wire)
}

// Stats returns the counters accumulated so far.
func (p *Pass) Stats() PassStats {
	return p.stats
}
