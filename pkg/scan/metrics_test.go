package scan

import "testing"

func TestRecordCompletionRoutesByKindAndReason(t *testing.T) {
	m := NewMetrics()
	m.RecordCompletion(KindBasic, ReasonNone)
	m.RecordCompletion(KindAggregation, ReasonUserAbort)
	m.RecordCompletion(KindUDFBackground, ReasonParameter)
	m.RecordCompletion(KindOpsBackground, ReasonNone)

	snap := m.Snapshot()
	if snap.BasicComplete != 1 {
		t.Fatalf("BasicComplete = %d, want 1", snap.BasicComplete)
	}
	if snap.AggrAbort != 1 {
		t.Fatalf("AggrAbort = %d, want 1", snap.AggrAbort)
	}
	if snap.UDFBgError != 1 {
		t.Fatalf("UDFBgError = %d, want 1", snap.UDFBgError)
	}
	if snap.OpsBgComplete != 1 {
		t.Fatalf("OpsBgComplete = %d, want 1", snap.OpsBgComplete)
	}
}

func TestRecordCompletionIgnoresUnknownKind(t *testing.T) {
	m := NewMetrics()
	m.RecordCompletion(JobKind(99), ReasonNone)
	snap := m.Snapshot()
	if snap != (Snapshot{}) {
		t.Fatalf("Snapshot() = %+v, want zero value", snap)
	}
}

func TestAddSubWriteFilteredOutAccumulates(t *testing.T) {
	m := NewMetrics()
	m.AddSubWriteFilteredOut(3)
	m.AddSubWriteFilteredOut(4)
	if got := m.Snapshot().SubWriteFilteredOut; got != 7 {
		t.Fatalf("SubWriteFilteredOut = %d, want 7", got)
	}
}
