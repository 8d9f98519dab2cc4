package scan

import "testing"

func baseCfg() *NamespaceConfig {
	return testNamespaceConfig(8)
}

func noSuchSet(string) (uint16, bool) { return 0, false }

func TestParseRequestWholeNamespaceDefaults(t *testing.T) {
	raw := &RawRequest{Trid: 1, ClientID: "c1"}
	parsed, err := ParseRequest(raw, baseCfg(), noSuchSet)
	if err != nil {
		t.Fatalf("ParseRequest() error = %v", err)
	}
	if parsed.SetID != InvalidSetID || parsed.SetName != "" {
		t.Fatalf("expected whole-namespace scan, got SetID=%v SetName=%q", parsed.SetID, parsed.SetName)
	}
	if parsed.Partitions != nil {
		t.Fatalf("expected nil Partitions (all-partitions mode), got %v", parsed.Partitions)
	}
	if parsed.Options.SamplePct != 100 {
		t.Fatalf("SamplePct default = %d, want 100", parsed.Options.SamplePct)
	}
}

func TestParseRequestUnknownSetWholeNamespaceRejected(t *testing.T) {
	raw := &RawRequest{Trid: 1, Set: []byte("ghost")}
	_, err := ParseRequest(raw, baseCfg(), noSuchSet)
	if err == nil {
		t.Fatal("expected error for unknown set with no partition list")
	}
	se, ok := err.(*ScanError)
	if !ok || se.Reason != ReasonNotFound {
		t.Fatalf("error = %v, want ScanError{Reason: ReasonNotFound}", err)
	}
}

func TestParseRequestUnknownSetToleratedInPartitionListMode(t *testing.T) {
	raw := &RawRequest{Trid: 1, Set: []byte("ghost"), PartitionIDs: []uint16{0, 1}}
	parsed, err := ParseRequest(raw, baseCfg(), noSuchSet)
	if err != nil {
		t.Fatalf("ParseRequest() error = %v, want nil (unknown set tolerated in partition-list mode)", err)
	}
	if parsed.SetID != InvalidSetID {
		t.Fatalf("SetID = %v, want InvalidSetID for an unresolved set", parsed.SetID)
	}
}

func TestParsePartitionsDuplicateRejected(t *testing.T) {
	raw := &RawRequest{PartitionIDs: []uint16{2, 2}}
	_, err := ParseRequest(raw, baseCfg(), noSuchSet)
	if err == nil {
		t.Fatal("expected error for duplicate partition id")
	}
}

func TestParsePartitionsOutOfRangeRejected(t *testing.T) {
	raw := &RawRequest{PartitionIDs: []uint16{99}}
	_, err := ParseRequest(raw, baseCfg(), noSuchSet)
	if err == nil {
		t.Fatal("expected error for out-of-range partition id")
	}
}

func TestParsePartitionsMergesDigestList(t *testing.T) {
	var d [DigestSize]byte
	d[0], d[1] = 3, 0 // partition 3 on an 8-partition namespace
	raw := &RawRequest{Digests: [][DigestSize]byte{d}}
	parsed, err := ParseRequest(raw, baseCfg(), noSuchSet)
	if err != nil {
		t.Fatalf("ParseRequest() error = %v", err)
	}
	if len(parsed.Partitions) != 8 {
		t.Fatalf("len(Partitions) = %d, want 8", len(parsed.Partitions))
	}
	if !parsed.Partitions[3].Requested || !parsed.Partitions[3].HasDigest {
		t.Fatalf("partition 3 = %+v, want Requested && HasDigest", parsed.Partitions[3])
	}
}

func TestParseRequestRPSLegacyLowPriority(t *testing.T) {
	raw := &RawRequest{HasScanOptions: true, ScanOptionsByte0: 1} // priority=1, no rps
	parsed, err := ParseRequest(raw, baseCfg(), noSuchSet)
	if err != nil {
		t.Fatalf("ParseRequest() error = %v", err)
	}
	if parsed.RPS != LowPriorityRPS {
		t.Fatalf("RPS = %d, want legacy default %d", parsed.RPS, LowPriorityRPS)
	}
}

func TestParseRequestExplicitRPSOverridesPriority(t *testing.T) {
	raw := &RawRequest{HasScanOptions: true, ScanOptionsByte0: 1, HasRPS: true, RPS: 42}
	parsed, err := ParseRequest(raw, baseCfg(), noSuchSet)
	if err != nil {
		t.Fatalf("ParseRequest() error = %v", err)
	}
	if parsed.RPS != 42 {
		t.Fatalf("RPS = %d, want 42 (explicit value wins)", parsed.RPS)
	}
}

func TestParseRequestSamplePercentOutOfRange(t *testing.T) {
	raw := &RawRequest{HasScanOptions: true, ScanOptionsByte1: 101}
	_, err := ParseRequest(raw, baseCfg(), noSuchSet)
	if err == nil {
		t.Fatal("expected error for sample percent > 100")
	}
}

func TestParseBinNamesDedupAndLimit(t *testing.T) {
	raw := &RawRequest{Ops: []OpField{{BinName: "a"}, {BinName: "a"}, {BinName: "b"}}}
	parsed, err := ParseRequest(raw, baseCfg(), noSuchSet)
	if err != nil {
		t.Fatalf("ParseRequest() error = %v", err)
	}
	if len(parsed.BinNames) != 2 {
		t.Fatalf("BinNames = %v, want [a b]", parsed.BinNames)
	}
}

func TestParseBinNamesTooLongRejected(t *testing.T) {
	raw := &RawRequest{Ops: []OpField{{BinName: "this-bin-name-is-definitely-too-long"}}}
	_, err := ParseRequest(raw, baseCfg(), noSuchSet)
	if err == nil {
		t.Fatal("expected error for bin name exceeding BinNameMaxLen")
	}
	se := err.(*ScanError)
	if se.Reason != ReasonBinName {
		t.Fatalf("Reason = %v, want ReasonBinName", se.Reason)
	}
}

func TestParseRequestSetNameTooLong(t *testing.T) {
	long := make([]byte, 64)
	for i := range long {
		long[i] = 'a'
	}
	raw := &RawRequest{Set: long}
	_, err := ParseRequest(raw, baseCfg(), noSuchSet)
	if err == nil {
		t.Fatal("expected error for set name longer than 63 bytes")
	}
}

func TestParseRequestSocketTimeoutDefaultsToInfinite(t *testing.T) {
	raw := &RawRequest{}
	parsed, err := ParseRequest(raw, baseCfg(), noSuchSet)
	if err != nil {
		t.Fatalf("ParseRequest() error = %v", err)
	}
	if parsed.SocketTimeoutMs != 0 {
		t.Fatalf("SocketTimeoutMs = %d, want 0 (infinite)", parsed.SocketTimeoutMs)
	}
}
