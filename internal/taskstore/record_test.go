package taskstore

import "testing"

func TestRecordRoundtrip(t *testing.T) {
	h := []byte("h")
	p := []byte("payload")
	enc := EncodeRecord(h, p)
	gotH, gotP, ok := DecodeRecord(enc)
	if !ok {
		t.Fatalf("decode failed")
	}
	if string(gotH) != string(h) || string(gotP) != string(p) {
		t.Fatalf("mismatch")
	}
}

func TestRecordCRCFail(t *testing.T) {
	enc := EncodeRecord([]byte("a"), []byte("b"))
	enc[len(enc)-1] ^= 0xFF
	if _, _, ok := DecodeRecord(enc); ok {
		t.Fatalf("expected crc fail")
	}
}

func TestRecordTruncatedHeader(t *testing.T) {
	enc := EncodeRecord([]byte("header"), nil)
	if _, _, ok := DecodeRecord(enc[:6]); ok {
		t.Fatalf("expected truncated record to fail")
	}
}
