// Package entropy implements the concrete entropy-coder collaborator used
// by this module's tests and by any caller that has not wired in a real
// ANS implementation. The wire-format ANS coder itself is out of scope
// (spec.md §1); what lives here only needs to be a correct, adaptive,
// round-trippable stand-in behind the emit_token/read_symbol/
// is_single_value/check_final_state contract (§6).
//
// The adaptive binary core is the 94-state MQ arithmetic coder, the same
// state machine used throughout EBCOT coding, generalized here from a
// fixed small context bank to an arbitrarily large, lazily grown one so a
// caller can index contexts by arbitrary small integers.
package entropy

// mqState is one entry of the probability-estimation state machine.
type mqState struct {
	Qe   uint32
	MPS  uint8
	NMPS uint8
	NLPS uint8
}

// mqStates is the standard 94-state table (47 probability classes * 2 MPS
// values), shared by every adaptive binary context this package creates.
var mqStates = []mqState{
	{0x5601, 0, 2, 3}, {0x5601, 1, 3, 2},
	{0x3401, 0, 4, 12}, {0x3401, 1, 5, 13},
	{0x1801, 0, 6, 18}, {0x1801, 1, 7, 19},
	{0x0AC1, 0, 8, 24}, {0x0AC1, 1, 9, 25},
	{0x0521, 0, 10, 58}, {0x0521, 1, 11, 59},
	{0x0221, 0, 76, 66}, {0x0221, 1, 77, 67},
	{0x5601, 0, 14, 13}, {0x5601, 1, 15, 12},
	{0x5401, 0, 16, 28}, {0x5401, 1, 17, 29},
	{0x4801, 0, 18, 28}, {0x4801, 1, 19, 29},
	{0x3801, 0, 20, 28}, {0x3801, 1, 21, 29},
	{0x3001, 0, 22, 34}, {0x3001, 1, 23, 35},
	{0x2401, 0, 24, 36}, {0x2401, 1, 25, 37},
	{0x1C01, 0, 26, 40}, {0x1C01, 1, 27, 41},
	{0x1601, 0, 58, 42}, {0x1601, 1, 59, 43},
	{0x5601, 0, 30, 29}, {0x5601, 1, 31, 28},
	{0x5401, 0, 32, 28}, {0x5401, 1, 33, 29},
	{0x5101, 0, 34, 30}, {0x5101, 1, 35, 31},
	{0x4801, 0, 36, 32}, {0x4801, 1, 37, 33},
	{0x3801, 0, 38, 34}, {0x3801, 1, 39, 35},
	{0x3401, 0, 40, 36}, {0x3401, 1, 41, 37},
	{0x3001, 0, 42, 38}, {0x3001, 1, 43, 39},
	{0x2801, 0, 44, 38}, {0x2801, 1, 45, 39},
	{0x2401, 0, 46, 40}, {0x2401, 1, 47, 41},
	{0x2201, 0, 48, 42}, {0x2201, 1, 49, 43},
	{0x1C01, 0, 50, 44}, {0x1C01, 1, 51, 45},
	{0x1801, 0, 52, 46}, {0x1801, 1, 53, 47},
	{0x1601, 0, 54, 48}, {0x1601, 1, 55, 49},
	{0x1401, 0, 56, 50}, {0x1401, 1, 57, 51},
	{0x1201, 0, 58, 52}, {0x1201, 1, 59, 53},
	{0x1101, 0, 60, 54}, {0x1101, 1, 61, 55},
	{0x0AC1, 0, 62, 56}, {0x0AC1, 1, 63, 57},
	{0x09C1, 0, 64, 58}, {0x09C1, 1, 65, 59},
	{0x08A1, 0, 66, 60}, {0x08A1, 1, 67, 61},
	{0x0521, 0, 68, 62}, {0x0521, 1, 69, 63},
	{0x0441, 0, 70, 64}, {0x0441, 1, 71, 65},
	{0x02A1, 0, 72, 66}, {0x02A1, 1, 73, 67},
	{0x0221, 0, 74, 68}, {0x0221, 1, 75, 69},
	{0x0141, 0, 76, 70}, {0x0141, 1, 77, 71},
	{0x0111, 0, 78, 72}, {0x0111, 1, 79, 73},
	{0x0085, 0, 80, 74}, {0x0085, 1, 81, 75},
	{0x0049, 0, 82, 76}, {0x0049, 1, 83, 77},
	{0x0025, 0, 84, 78}, {0x0025, 1, 85, 79},
	{0x0015, 0, 86, 80}, {0x0015, 1, 87, 81},
	{0x0009, 0, 88, 82}, {0x0009, 1, 89, 83},
	{0x0005, 0, 90, 84}, {0x0005, 1, 91, 85},
	{0x0001, 0, 90, 86}, {0x0001, 1, 91, 87},
	{0x5601, 0, 92, 92}, {0x5601, 1, 93, 93},
}

var (
	mqQe   [94]uint32
	mqNMPS [94]uint8
	mqNLPS [94]uint8
)

func init() {
	for i, s := range mqStates {
		mqQe[i] = s.Qe
		mqNMPS[i] = s.NMPS
		mqNLPS[i] = s.NLPS
	}
}

// binEncoder is an MQ arithmetic encoder over a lazily grown context bank,
// one byte buffer per stream.
type binEncoder struct {
	a, c, ct uint32
	buf      []byte
	bp       int
	states   []uint8
}

func newBinEncoder() *binEncoder {
	e := &binEncoder{a: 0x8000, ct: 12, buf: make([]byte, 1, 256)}
	return e
}

func (e *binEncoder) ensure(ctx int) {
	for len(e.states) <= ctx {
		e.states = append(e.states, 0)
	}
}

// EncodeBit codes one binary decision under context ctx, adapting that
// context's probability state.
func (e *binEncoder) EncodeBit(ctx int, bit int) {
	e.ensure(ctx)
	stateIdx := e.states[ctx]
	qe := mqQe[stateIdx]
	mps := stateIdx & 1

	e.a -= qe
	if uint8(bit) == mps {
		if (e.a & 0x8000) == 0 {
			if e.a < qe {
				e.a = qe
			} else {
				e.c += qe
			}
			e.states[ctx] = mqNMPS[stateIdx]
			e.renorm()
		} else {
			e.c += qe
		}
	} else {
		if e.a < qe {
			e.c += qe
		} else {
			e.a = qe
		}
		e.states[ctx] = mqNLPS[stateIdx]
		e.renorm()
	}
}

func (e *binEncoder) renorm() {
	for (e.a & 0x8000) == 0 {
		e.a <<= 1
		e.c <<= 1
		e.ct--
		if e.ct == 0 {
			e.byteOut()
		}
	}
}

func (e *binEncoder) byteOut() {
	if e.buf[e.bp] == 0xFF {
		e.bp++
		if e.bp >= len(e.buf) {
			e.buf = append(e.buf, 0)
		}
		e.buf[e.bp] = byte(e.c >> 20)
		e.c &= 0xFFFFF
		e.ct = 7
		return
	}
	if (e.c & 0x8000000) == 0 {
		e.bp++
		if e.bp >= len(e.buf) {
			e.buf = append(e.buf, 0)
		}
		e.buf[e.bp] = byte(e.c >> 19)
		e.c &= 0x7FFFF
		e.ct = 8
		return
	}
	e.buf[e.bp]++
	if e.buf[e.bp] == 0xFF {
		e.c &= 0x7FFFFFF
		e.bp++
		if e.bp >= len(e.buf) {
			e.buf = append(e.buf, 0)
		}
		e.buf[e.bp] = byte(e.c >> 20)
		e.c &= 0xFFFFF
		e.ct = 7
	} else {
		e.bp++
		if e.bp >= len(e.buf) {
			e.buf = append(e.buf, 0)
		}
		e.buf[e.bp] = byte(e.c >> 19)
		e.c &= 0x7FFFF
		e.ct = 8
	}
}

// Flush terminates the stream and returns it.
func (e *binEncoder) Flush() []byte {
	tempC := e.c + e.a
	e.c |= 0xFFFF
	if e.c >= tempC {
		e.c -= 0x8000
	}
	e.c <<= e.ct
	e.byteOut()
	e.c <<= e.ct
	e.byteOut()

	end := e.bp + 1
	if end > 0 && e.buf[end-1] == 0xFF {
		end--
	}
	if end > 1 {
		return e.buf[1:end]
	}
	return nil
}

// binDecoder is the mirror-image decoder.
type binDecoder struct {
	c, a, ct uint32
	bp       int
	data     []byte
	states   []uint8
}

func newBinDecoder(data []byte) *binDecoder {
	d := &binDecoder{a: 0x8000, data: data, bp: -1}
	if len(data) == 0 {
		d.c = 0xFF << 16
	} else {
		d.bp = 0
		d.c = uint32(data[0]) << 16
	}
	d.byteIn()
	d.c <<= 7
	d.ct -= 7
	d.a = 0x8000
	return d
}

func (d *binDecoder) ensure(ctx int) {
	for len(d.states) <= ctx {
		d.states = append(d.states, 0)
	}
}

func (d *binDecoder) byteIn() {
	if d.bp < 0 {
		d.bp = 0
	}
	if d.bp >= len(d.data) {
		d.c += 0xFF00
		d.ct = 8
		return
	}
	var next byte = 0xFF
	if d.bp+1 < len(d.data) {
		next = d.data[d.bp+1]
	}
	if d.data[d.bp] == 0xFF {
		if next > 0x8F {
			d.c += 0xFF00
			d.ct = 8
		} else {
			d.bp++
			d.c += uint32(next) << 9
			d.ct = 7
		}
	} else {
		d.bp++
		d.c += uint32(next) << 8
		d.ct = 8
	}
}

// DecodeBit decodes one binary decision under context ctx.
func (d *binDecoder) DecodeBit(ctx int) int {
	d.ensure(ctx)
	stateIdx := d.states[ctx]
	qe := mqQe[stateIdx]
	mps := int(stateIdx & 1)

	d.a -= qe
	if (d.c >> 16) < qe {
		var bit int
		if d.a < qe {
			d.a = qe
			bit = mps
			d.states[ctx] = mqNMPS[stateIdx]
		} else {
			d.a = qe
			bit = 1 - mps
			d.states[ctx] = mqNLPS[stateIdx]
		}
		d.renorm()
		return bit
	}

	d.c -= qe << 16
	if (d.a & 0x8000) == 0 {
		var bit int
		if d.a < qe {
			bit = 1 - mps
			d.states[ctx] = mqNLPS[stateIdx]
		} else {
			bit = mps
			d.states[ctx] = mqNMPS[stateIdx]
		}
		d.renorm()
		return bit
	}
	return mps
}

func (d *binDecoder) renorm() {
	for (d.a & 0x8000) == 0 {
		if d.ct == 0 {
			d.byteIn()
		}
		d.a <<= 1
		d.c <<= 1
		d.ct--
	}
}
