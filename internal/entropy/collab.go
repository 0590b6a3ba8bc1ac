// Package entropy's Encoder and Decoder implement the entropy-coder
// collaborator contract described in §6: emit_token/read_symbol for
// per-pixel residual tokens, is_single_value for degenerate contexts, and
// check_final_state for end-to-end stream integrity. The real ANS coder
// this contract is modeled after is explicitly out of scope (spec.md §1);
// this is the stand-in that makes the rest of the module testable without
// it, built from an adaptive binary coder (arith.go) driving a
// self-tuning Golomb-Rice split (rice.go) between modeled continuation
// bits and raw remainder bits (raw.go).
package entropy

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// escapePrefix bounds how many adaptively-coded unary continuation bits a
// token may spend before the coder gives up on the current Rice parameter
// and falls back to a fixed-width raw symbol; this keeps a single
// pathological value from costing an unbounded number of bits.
const escapePrefix = 24

// escapeBits is the width of a raw fallback symbol and of a declared
// single value, sized to comfortably hold a zig-zag-packed 32-bit pixel
// residual or predictor coefficient.
const escapeBits = 48

type singleInfo struct {
	isSingle bool
	value    uint64
}

func leBytes(v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:]
}

func contContext(context int) int { return 2 * context }
func declContext(context int) int { return 2*context + 1 }

// Encoder is the encode-side collaborator.
type Encoder struct {
	arith  *binEncoder
	raw    *rawBitWriter
	rice   map[int]*riceState
	single map[int]singleInfo
	crc    uint32
}

// NewEncoder creates an Encoder ready to accept DeclareContext/EmitToken
// calls in the order the caller intends to replay them on decode.
func NewEncoder() *Encoder {
	return &Encoder{
		arith:  newBinEncoder(),
		raw:    newRawBitWriter(),
		rice:   make(map[int]*riceState),
		single: make(map[int]singleInfo),
	}
}

func (e *Encoder) riceFor(context int) *riceState {
	r, ok := e.rice[context]
	if !ok {
		r = newRiceState()
		e.rice[context] = r
	}
	return r
}

// DeclareContext records whether every value context will ever take is
// the same single value, writing one flag bit (and, if single, the value)
// so the matching Decoder.DeclareContext call can skip per-symbol coding
// entirely for degenerate contexts (§6 is_single_value). DeclareContext is
// optional: a context that never goes through it is coded symbol by
// symbol. Where it is used, both sides of the stream must call it for the
// same contexts, in the same order, before that context's first token.
func (e *Encoder) DeclareContext(context int, values []uint64) (isSingle bool, value uint64) {
	isSingle = len(values) > 0
	if isSingle {
		value = values[0]
		for _, v := range values[1:] {
			if v != value {
				isSingle = false
				break
			}
		}
	}
	e.single[context] = singleInfo{isSingle, value}

	bit := 0
	if isSingle {
		bit = 1
	}
	e.arith.EncodeBit(declContext(context), bit)
	if isSingle {
		e.raw.WriteBits(value, escapeBits)
	}
	return isSingle, value
}

// IsSingleValue reports what the most recent DeclareContext call for
// context established.
func (e *Encoder) IsSingleValue(context int) (bool, uint64) {
	info := e.single[context]
	return info.isSingle, info.value
}

// EmitToken codes one residual/property token under context. symbol must
// already be non-negative (callers zig-zag pack signed values upstream,
// via internal/xlpixel.PackSigned).
func (e *Encoder) EmitToken(context int, symbol uint64) error {
	if info, ok := e.single[context]; ok && info.isSingle {
		if symbol != info.value {
			return fmt.Errorf("entropy: symbol %d contradicts the declared single value %d for context %d", symbol, info.value, context)
		}
		e.crc = crc32.Update(e.crc, crc32.IEEETable, leBytes(symbol))
		return nil
	}

	r := e.riceFor(context)
	k := r.k()
	quotient := symbol >> k
	cc := contContext(context)

	if quotient >= escapePrefix {
		for i := 0; i < escapePrefix; i++ {
			e.arith.EncodeBit(cc, 1)
		}
		e.raw.WriteBits(symbol, escapeBits)
	} else {
		for i := uint64(0); i < quotient; i++ {
			e.arith.EncodeBit(cc, 1)
		}
		e.arith.EncodeBit(cc, 0)
		if k > 0 {
			remainder := symbol & ((uint64(1) << k) - 1)
			e.raw.WriteBits(remainder, uint(k))
		}
	}
	r.update(symbol)
	e.crc = crc32.Update(e.crc, crc32.IEEETable, leBytes(symbol))
	return nil
}

// CheckFinalState is a no-op on the encode side: there is nothing to
// validate until a Decoder has replayed the stream. It exists so callers
// can treat Encoder and Decoder uniformly through the collaborator
// contract.
func (e *Encoder) CheckFinalState() error { return nil }

// Finish flushes the adaptive and raw sub-streams into one self-describing
// byte slice: a CRC of every token/declared value seen, the length of the
// arithmetic-coded sub-stream, then the two sub-streams back to back.
func (e *Encoder) Finish() []byte {
	arithBytes := e.arith.Flush()
	rawBytes := e.raw.Bytes()
	out := make([]byte, 8, 8+len(arithBytes)+len(rawBytes))
	binary.LittleEndian.PutUint32(out[0:4], e.crc)
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(arithBytes)))
	out = append(out, arithBytes...)
	out = append(out, rawBytes...)
	return out
}

// Decoder is the decode-side collaborator, mirroring Encoder exactly.
type Decoder struct {
	arith   *binDecoder
	raw     *rawBitReader
	rice    map[int]*riceState
	single  map[int]singleInfo
	crc     uint32
	wantCRC uint32
}

// NewDecoder opens a stream produced by Encoder.Finish.
func NewDecoder(data []byte) (*Decoder, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("entropy: stream too short to contain a header")
	}
	wantCRC := binary.LittleEndian.Uint32(data[0:4])
	arithLen := binary.LittleEndian.Uint32(data[4:8])
	if int(arithLen) > len(data)-8 {
		return nil, fmt.Errorf("entropy: truncated stream: declared arith length %d exceeds available %d", arithLen, len(data)-8)
	}
	arithBytes := data[8 : 8+arithLen]
	rawBytes := data[8+arithLen:]
	return &Decoder{
		arith:   newBinDecoder(arithBytes),
		raw:     newRawBitReader(rawBytes),
		rice:    make(map[int]*riceState),
		single:  make(map[int]singleInfo),
		wantCRC: wantCRC,
	}, nil
}

func (d *Decoder) riceFor(context int) *riceState {
	r, ok := d.rice[context]
	if !ok {
		r = newRiceState()
		d.rice[context] = r
	}
	return r
}

// DeclareContext is the decode-side mirror of Encoder.DeclareContext; n is
// accepted for symmetry with the §6 is_single_value(context_id, n)
// signature but is not otherwise needed since the flag itself is on the
// wire.
func (d *Decoder) DeclareContext(context int, n int) (bool, uint64) {
	_ = n
	isSingle := d.arith.DecodeBit(declContext(context)) != 0
	var value uint64
	if isSingle {
		value = d.raw.ReadBits(escapeBits)
	}
	d.single[context] = singleInfo{isSingle, value}
	return isSingle, value
}

// IsSingleValue reports what the most recent DeclareContext call for
// context established.
func (d *Decoder) IsSingleValue(context int) (bool, uint64) {
	info := d.single[context]
	return info.isSingle, info.value
}

// ReadSymbol decodes one residual/property token under context.
func (d *Decoder) ReadSymbol(context int) (uint64, error) {
	if info, ok := d.single[context]; ok && info.isSingle {
		d.crc = crc32.Update(d.crc, crc32.IEEETable, leBytes(info.value))
		return info.value, nil
	}

	r := d.riceFor(context)
	k := r.k()
	cc := contContext(context)

	quotient := uint64(0)
	for quotient < escapePrefix {
		if d.arith.DecodeBit(cc) == 0 {
			break
		}
		quotient++
	}

	var symbol uint64
	if quotient >= escapePrefix {
		symbol = d.raw.ReadBits(escapeBits)
	} else {
		var remainder uint64
		if k > 0 {
			remainder = d.raw.ReadBits(uint(k))
		}
		symbol = quotient<<k | remainder
	}
	r.update(symbol)
	d.crc = crc32.Update(d.crc, crc32.IEEETable, leBytes(symbol))
	return symbol, nil
}

// CheckFinalState verifies that every token this Decoder has read (and
// every value it has served from a declared single-value context) hashes
// to the same CRC the Encoder computed, catching any drift between the two
// sides (§6: "the collaborator itself, at end of stream, can always say
// whether it believes the stream to be internally consistent").
func (d *Decoder) CheckFinalState() error {
	if d.crc != d.wantCRC {
		return fmt.Errorf("entropy: final state mismatch: got crc %08x, want %08x", d.crc, d.wantCRC)
	}
	return nil
}
