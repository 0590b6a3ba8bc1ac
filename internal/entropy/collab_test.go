package entropy

import "testing"

func TestEmitReadRoundTrip(t *testing.T) {
	symbols := map[int][]uint64{
		0: {0, 0, 1, 2, 3, 5, 8, 13, 21, 34, 0, 0, 0},
		1: {1000, 2000, 1500, 999, 1, 0, 70000},
		2: {7, 7, 7, 7, 7, 7, 7},
	}

	enc := NewEncoder()
	for ctx := 0; ctx < 3; ctx++ {
		enc.DeclareContext(ctx, symbols[ctx])
	}
	for ctx := 0; ctx < 3; ctx++ {
		for _, s := range symbols[ctx] {
			if err := enc.EmitToken(ctx, s); err != nil {
				t.Fatalf("EmitToken(%d, %d): %v", ctx, s, err)
			}
		}
	}
	if err := enc.CheckFinalState(); err != nil {
		t.Fatalf("encoder CheckFinalState: %v", err)
	}
	stream := enc.Finish()

	dec, err := NewDecoder(stream)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	for ctx := 0; ctx < 3; ctx++ {
		dec.DeclareContext(ctx, len(symbols[ctx]))
	}
	for ctx := 0; ctx < 3; ctx++ {
		for i, want := range symbols[ctx] {
			got, err := dec.ReadSymbol(ctx)
			if err != nil {
				t.Fatalf("ReadSymbol(%d) #%d: %v", ctx, i, err)
			}
			if got != want {
				t.Fatalf("context %d symbol #%d: got %d, want %d", ctx, i, got, want)
			}
		}
	}
	if err := dec.CheckFinalState(); err != nil {
		t.Fatalf("decoder CheckFinalState: %v", err)
	}
}

func TestIsSingleValueContext(t *testing.T) {
	enc := NewEncoder()
	isSingle, value := enc.DeclareContext(5, []uint64{42, 42, 42, 42})
	if !isSingle || value != 42 {
		t.Fatalf("DeclareContext = (%v,%d), want (true,42)", isSingle, value)
	}
	for i := 0; i < 4; i++ {
		if err := enc.EmitToken(5, 42); err != nil {
			t.Fatalf("EmitToken on single-value context: %v", err)
		}
	}
	if err := enc.EmitToken(5, 43); err == nil {
		t.Fatal("expected EmitToken to reject a value that contradicts the declared single value")
	}
	stream := enc.Finish()

	dec, err := NewDecoder(stream)
	if err != nil {
		t.Fatal(err)
	}
	gotSingle, gotValue := dec.DeclareContext(5, 4)
	if !gotSingle || gotValue != 42 {
		t.Fatalf("decoder DeclareContext = (%v,%d), want (true,42)", gotSingle, gotValue)
	}
	singleSeen, v := dec.IsSingleValue(5)
	if !singleSeen || v != 42 {
		t.Fatalf("decoder IsSingleValue = (%v,%d), want (true,42)", singleSeen, v)
	}
}

func TestCheckFinalStateCatchesCorruption(t *testing.T) {
	enc := NewEncoder()
	enc.DeclareContext(0, []uint64{1, 2, 3})
	for _, s := range []uint64{1, 2, 3} {
		enc.EmitToken(0, s)
	}
	stream := enc.Finish()
	if len(stream) < 9 {
		t.Fatalf("stream too short to corrupt meaningfully: %d bytes", len(stream))
	}
	stream[8] ^= 0xFF // flip a bit inside the arithmetic-coded sub-stream

	dec, err := NewDecoder(stream)
	if err != nil {
		t.Fatal(err)
	}
	dec.DeclareContext(0, 3)
	for i := 0; i < 3; i++ {
		dec.ReadSymbol(0)
	}
	if err := dec.CheckFinalState(); err == nil {
		t.Fatal("expected CheckFinalState to detect the corrupted stream")
	}
}

func TestEscapePathForLargeSymbols(t *testing.T) {
	enc := NewEncoder()
	big := []uint64{0, 1, 2, 1 << 20, 1, 0}
	enc.DeclareContext(9, big)
	for _, s := range big {
		if err := enc.EmitToken(9, s); err != nil {
			t.Fatal(err)
		}
	}
	stream := enc.Finish()

	dec, err := NewDecoder(stream)
	if err != nil {
		t.Fatal(err)
	}
	dec.DeclareContext(9, len(big))
	for i, want := range big {
		got, err := dec.ReadSymbol(9)
		if err != nil {
			t.Fatalf("#%d: %v", i, err)
		}
		if got != want {
			t.Fatalf("#%d: got %d, want %d", i, got, want)
		}
	}
	if err := dec.CheckFinalState(); err != nil {
		t.Fatal(err)
	}
}
