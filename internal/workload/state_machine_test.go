package workload

import (
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/jpequegn/txnbench/internal/txmodel"
)

func testTypes() []txmodel.TransactionType {
	return []txmodel.TransactionType{
		{ID: 1, Name: "A", Weight: 50},
		{ID: 2, Name: "B", Weight: 50},
	}
}

func TestBlockForStart_ReleasesOnlyAfterArmStart(t *testing.T) {
	sm := New(NewMix(testTypes(), rand.New(rand.NewPCG(1, 1))))

	released := make(chan struct{})
	go func() {
		sm.BlockForStart()
		close(released)
	}()

	select {
	case <-released:
		t.Fatal("BlockForStart returned before ArmStart was called")
	case <-time.After(20 * time.Millisecond):
	}

	sm.ArmStart()

	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("BlockForStart did not release after ArmStart")
	}
}

func TestArmStart_IsIdempotent(t *testing.T) {
	sm := New(NewMix(testTypes(), rand.New(rand.NewPCG(1, 1))))
	sm.ArmStart()
	sm.ArmStart() // must not panic on double-close
	sm.BlockForStart()
}

func TestStayAwake_WakesOnSetPhase(t *testing.T) {
	sm := New(NewMix(testTypes(), rand.New(rand.NewPCG(1, 1))))
	sm.ArmStart()

	woke := make(chan struct{})
	go func() {
		sm.StayAwake()
		close(woke)
	}()

	select {
	case <-woke:
		t.Fatal("StayAwake returned before any phase was installed")
	case <-time.After(20 * time.Millisecond):
	}

	sm.SetPhase(&txmodel.Phase{ID: 1, Kind: txmodel.Latency}, []int{1, 2})
	defer sm.SetPhase(nil, nil)

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("StayAwake did not wake after SetPhase")
	}
}

func TestStayAwake_ReturnsImmediatelyWhenDone(t *testing.T) {
	sm := New(NewMix(testTypes(), rand.New(rand.NewPCG(1, 1))))
	sm.ArmStart()
	sm.SignalDone()

	done := make(chan struct{})
	go func() {
		sm.StayAwake()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("StayAwake blocked after Done")
	}
}

func TestFetchWork_SerialListExhaustion(t *testing.T) {
	sm := New(NewMix(testTypes(), rand.New(rand.NewPCG(1, 1))))
	sm.ArmStart()
	sm.SetPhase(&txmodel.Phase{ID: 7, Kind: txmodel.Latency}, []int{1, 2, 1})
	defer sm.SetPhase(nil, nil)

	now := func() int64 { return 42 }

	for i, wantID := range []int{1, 2, 1} {
		work, status := sm.FetchWork(now)
		if status != FetchOK {
			t.Fatalf("fetch %d: status = %v, want FetchOK", i, status)
		}
		if work.TypeID != wantID {
			t.Errorf("fetch %d: typeID = %d, want %d", i, work.TypeID, wantID)
		}
		if work.StartTimeNs != 42 {
			t.Errorf("fetch %d: startTimeNs = %d, want 42", i, work.StartTimeNs)
		}
	}

	if _, status := sm.FetchWork(now); status != FetchEndOfPhase {
		t.Errorf("fetch after exhaustion: status = %v, want FetchEndOfPhase", status)
	}
	// Exhaustion is sticky until SetPhase resets the cursor.
	if _, status := sm.FetchWork(now); status != FetchEndOfPhase {
		t.Errorf("second fetch after exhaustion: status = %v, want FetchEndOfPhase", status)
	}
}

func TestFetchWork_SerialListIsDisjointUnderConcurrency(t *testing.T) {
	const n = 50
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i + 1
	}
	sm := New(NewMix(testTypes(), rand.New(rand.NewPCG(1, 1))))
	sm.ArmStart()
	sm.SetPhase(&txmodel.Phase{ID: 1, Kind: txmodel.Latency}, ids)
	defer sm.SetPhase(nil, nil)

	now := func() int64 { return 0 }

	var mu sync.Mutex
	seen := make(map[int]int)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				work, status := sm.FetchWork(now)
				if status == FetchEndOfPhase {
					return
				}
				mu.Lock()
				seen[work.TypeID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Fatalf("got %d distinct ids, want %d", len(seen), n)
	}
	for id, count := range seen {
		if count != 1 {
			t.Errorf("id %d fetched %d times, want exactly 1", id, count)
		}
	}
}

func TestFetchWork_ThroughputDrainsProducer(t *testing.T) {
	sm := New(NewMix(testTypes(), rand.New(rand.NewPCG(1, 1))))
	sm.ArmStart()
	sm.SetPhase(&txmodel.Phase{ID: 1, Kind: txmodel.Throughput, Rate: 0}, nil)
	defer sm.SetPhase(nil, nil)

	now := func() int64 { return 1 }
	work, status := sm.FetchWork(now)
	if status != FetchOK {
		t.Fatalf("status = %v, want FetchOK", status)
	}
	if work.TypeID != 1 && work.TypeID != 2 {
		t.Errorf("unexpected typeID %d", work.TypeID)
	}
}

func TestFetchWork_UnblocksOnDone(t *testing.T) {
	sm := New(NewMix(testTypes(), rand.New(rand.NewPCG(1, 1))))
	sm.ArmStart()
	// A throughput phase with an effectively-zero rate that we starve by
	// never letting the producer run: use a phase with Rate so tiny the
	// first tick won't fire before we signal Done.
	sm.SetPhase(&txmodel.Phase{ID: 1, Kind: txmodel.Throughput, Rate: 0.001}, nil)

	resultCh := make(chan FetchStatus, 1)
	go func() {
		_, status := sm.FetchWork(func() int64 { return 0 })
		resultCh <- status
	}()

	time.Sleep(10 * time.Millisecond)
	sm.SignalDone()

	select {
	case status := <-resultCh:
		if status != FetchEndOfPhase {
			t.Errorf("status = %v, want FetchEndOfPhase", status)
		}
	case <-time.After(time.Second):
		t.Fatal("FetchWork did not unblock after SignalDone")
	}
}

func TestFinishedWork_IsMonotonicAndCumulative(t *testing.T) {
	sm := New(NewMix(testTypes(), rand.New(rand.NewPCG(1, 1))))
	if got := sm.TotalFinished(); got != 0 {
		t.Fatalf("initial TotalFinished = %d, want 0", got)
	}
	for i := 0; i < 5; i++ {
		sm.FinishedWork()
	}
	if got := sm.TotalFinished(); got != 5 {
		t.Errorf("TotalFinished = %d, want 5", got)
	}
}

func TestSetState_IsCompareAndSwap(t *testing.T) {
	sm := New(NewMix(testTypes(), rand.New(rand.NewPCG(1, 1))))
	sm.ForceState(txmodel.Measure)

	if ok := sm.setState(txmodel.ColdQuery, txmodel.Measure); ok {
		t.Error("setState succeeded from the wrong fromState")
	}
	if got := sm.GlobalState(); got != txmodel.Measure {
		t.Errorf("state changed despite failed CAS: %v", got)
	}

	sm.StartColdQuery()
	if got := sm.GlobalState(); got != txmodel.ColdQuery {
		t.Errorf("StartColdQuery: state = %v, want COLD_QUERY", got)
	}
	sm.StartHotQuery()
	if got := sm.GlobalState(); got != txmodel.Measure {
		t.Errorf("StartHotQuery: state = %v, want MEASURE", got)
	}
}

func TestSignalDone_IsPersistentAndIdempotent(t *testing.T) {
	sm := New(NewMix(testTypes(), rand.New(rand.NewPCG(1, 1))))
	sm.ForceState(txmodel.Measure)
	sm.SignalDone()
	if got := sm.GlobalState(); got != txmodel.Done {
		t.Fatalf("state = %v, want DONE", got)
	}
	sm.ForceState(txmodel.Warmup)
	if got := sm.GlobalState(); got != txmodel.Done {
		t.Fatalf("state after ForceState(Warmup) = %v, want DONE", got)
	}
	sm.SignalDone()
	if got := sm.GlobalState(); got != txmodel.Done {
		t.Fatalf("state after second SignalDone = %v, want DONE", got)
	}
}

func TestSignalLatencyComplete_OnlyFromColdQueryOrMeasure(t *testing.T) {
	sm := New(NewMix(testTypes(), rand.New(rand.NewPCG(1, 1))))

	sm.ForceState(txmodel.Warmup)
	sm.SignalLatencyComplete()
	if got := sm.GlobalState(); got != txmodel.Warmup {
		t.Errorf("SignalLatencyComplete fired from WARMUP: state = %v", got)
	}

	sm.ForceState(txmodel.Measure)
	sm.SignalLatencyComplete()
	if got := sm.GlobalState(); got != txmodel.LatencyComplete {
		t.Errorf("state = %v, want LATENCY_COMPLETE", got)
	}
}

func TestCurrentPhase_NilWhenNoneInstalled(t *testing.T) {
	sm := New(NewMix(testTypes(), rand.New(rand.NewPCG(1, 1))))
	if p := sm.CurrentPhase(); p != nil {
		t.Fatalf("CurrentPhase = %v, want nil", p)
	}
	sm.SetPhase(&txmodel.Phase{ID: 3, Kind: txmodel.Latency}, []int{1})
	defer sm.SetPhase(nil, nil)
	p := sm.CurrentPhase()
	if p == nil || p.ID != 3 {
		t.Fatalf("CurrentPhase = %v, want phase id 3", p)
	}
}

func TestMix_PickPanicsWithNoPositiveWeight(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Pick did not panic with an all-zero-weight mix")
		}
	}()
	m := NewMix([]txmodel.TransactionType{{ID: 1, Name: "Z", Weight: 0}}, rand.New(rand.NewPCG(1, 1)))
	m.Pick()
}

func TestMix_PickRespectsWeighting(t *testing.T) {
	types := []txmodel.TransactionType{
		{ID: 1, Name: "Heavy", Weight: 99},
		{ID: 2, Name: "Light", Weight: 1},
	}
	m := NewMix(types, rand.New(rand.NewPCG(7, 11)))
	counts := map[int]int{}
	for i := 0; i < 1000; i++ {
		counts[m.Pick()]++
	}
	if counts[1] <= counts[2] {
		t.Errorf("expected heavy type to dominate, got %v", counts)
	}
}
