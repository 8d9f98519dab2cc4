package scan

import "testing"

type recordingLogger struct {
	entries []string
}

func (l *recordingLogger) Log(level Level, msg string, keyvals ...any) {
	l.entries = append(l.entries, msg)
}
func (l *recordingLogger) Level() Level { return LevelDebug }

func TestJobCoreAbandonOnce(t *testing.T) {
	core := NewJobCore(1, "ns", "", InvalidSetID, nil, 0, "c1", nil)
	core.Abandon(ReasonResponseError)
	core.Abandon(ReasonUserAbort) // second call must not win

	if got := core.Abandoned(); got != ReasonResponseError {
		t.Fatalf("Abandoned() = %v, want %v (first writer wins)", got, ReasonResponseError)
	}
}

func TestJobCoreAbandonLogsOnceOnFirstWriter(t *testing.T) {
	logger := &recordingLogger{}
	core := NewJobCore(1, "ns", "", InvalidSetID, nil, 0, "c1", logger)
	core.Abandon(ReasonResponseError)
	core.Abandon(ReasonUserAbort)

	if len(logger.entries) != 1 {
		t.Fatalf("logger.entries = %v, want exactly one log line", logger.entries)
	}
}

func TestJobCoreAbandonedDefaultsToNone(t *testing.T) {
	core := NewJobCore(1, "ns", "", InvalidSetID, nil, 0, "c1", nil)
	if got := core.Abandoned(); got != ReasonNone {
		t.Fatalf("Abandoned() on fresh core = %v, want ReasonNone", got)
	}
}

func TestJobCoreCounters(t *testing.T) {
	core := NewJobCore(1, "ns", "", InvalidSetID, nil, 0, "c1", nil)
	core.addSucceeded(3)
	core.addFailed(1)
	core.addFilteredMeta(2)
	core.addFilteredBins(4)

	got := core.counters()
	want := Counters{Succeeded: 3, Failed: 1, FilteredMeta: 2, FilteredBins: 4}
	if got != want {
		t.Fatalf("counters() = %+v, want %+v", got, want)
	}
}

func TestRecordVisibleWholeNamespace(t *testing.T) {
	core := NewJobCore(1, "ns", "", InvalidSetID, nil, 0, "c1", nil)
	live := RecordRef{SetID: 7}
	if !recordVisible(&core, live) {
		t.Fatal("whole-namespace job should see any set id")
	}
	doomed := RecordRef{SetID: 7, Doomed: true}
	if recordVisible(&core, doomed) {
		t.Fatal("doomed record must never be visible")
	}
}

func TestRecordVisibleScopedToSet(t *testing.T) {
	core := NewJobCore(1, "ns", "myset", 5, nil, 0, "c1", nil)
	if !recordVisible(&core, RecordRef{SetID: 5}) {
		t.Fatal("record in the requested set should be visible")
	}
	if recordVisible(&core, RecordRef{SetID: 6}) {
		t.Fatal("record in a different set should not be visible")
	}
}

func TestJobKindString(t *testing.T) {
	cases := map[JobKind]string{
		KindBasic:         "basic",
		KindAggregation:   "aggregation",
		KindUDFBackground: "udf-bg",
		KindOpsBackground: "ops-bg",
		JobKind(99):       "unknown",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("JobKind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}
