package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/roach88/fiberclient/internal/canon"
	"github.com/roach88/fiberclient/internal/ledger"
	"github.com/roach88/fiberclient/internal/message"
	"github.com/roach88/fiberclient/internal/rejection"
	"github.com/roach88/fiberclient/internal/signing"
)

// Rejection codes produced by FakeLedger besides the benign ones.
const (
	CodeFiberNotFound      = "FiberNotFound"
	CodeFiberAlreadyExists = "FiberAlreadyExists"
	CodeFiberNotActive     = "FiberNotActive"
	CodeInvalidDefinition  = "InvalidDefinition"
	CodeGuardFailed        = "GuardFailed"
	CodeInvalidSignature   = "InvalidSignature"
	CodeInvalidEnvelope    = "InvalidEnvelope"
)

// Definition is the state-machine format FakeLedger interprets. Real
// ledgers treat definitions as opaque rule documents; the fake needs
// something concrete to evaluate.
//
//	{"initialState": "new",
//	 "transitions": {"new": {"open": "opened"}},
//	 "guards": {"open": "amount"}}
//
// A guard names a payload key that must be present for the event.
type Definition struct {
	InitialState string                       `json:"initialState"`
	Transitions  map[string]map[string]string `json:"transitions"`
	Guards       map[string]string            `json:"guards,omitempty"`
}

// MustDefinition encodes d for CreateStateMachine.Definition.
func MustDefinition(d Definition) json.RawMessage {
	b, err := json.Marshal(d)
	if err != nil {
		panic(err)
	}
	return b
}

type fakeFiber struct {
	id          string
	script      bool
	def         Definition
	state       string
	seq         int64
	data        json.RawMessage
	status      string
	owners      []string
	parent      string
	lastOrdinal int64
}

func (f *fakeFiber) record() ledger.FiberRecord {
	return ledger.FiberRecord{
		FiberID:            f.id,
		CurrentState:       f.state,
		StateData:          f.data,
		SequenceNumber:     f.seq,
		Status:             f.status,
		Owners:             f.owners,
		ParentFiberID:      f.parent,
		LastUpdatedOrdinal: f.lastOrdinal,
	}
}

type pendingUpdate struct {
	hash    string
	msg     message.Message
	signers []string
}

type injectedFault struct {
	status  int
	code    string
	message string
}

// FakeLedger is an in-memory ledger, replica and rejection indexer behind
// an httptest server.
//
// Submissions are accepted synchronously once their proofs verify and are
// validated later, in Flush, the way a real ledger validates at snapshot
// time. With lag enabled the replica only observes updates after an
// explicit Flush; otherwise every read flushes first.
type FakeLedger struct {
	srv      *httptest.Server
	ordinals *Ordinals

	mu         sync.Mutex
	lagging    bool
	fibers     map[string]*fakeFiber
	pending    []pendingUpdate
	rejections []rejection.Record
	snapshots  map[int64][]byte
	submitted  int
	faults     []injectedFault
}

// FakeOption configures a FakeLedger.
type FakeOption func(*FakeLedger)

// Lagging makes the replica observe updates only on Flush.
func Lagging() FakeOption {
	return func(f *FakeLedger) {
		f.lagging = true
	}
}

// NewFakeLedger starts a FakeLedger; it is closed when the test ends.
func NewFakeLedger(t testing.TB, opts ...FakeOption) *FakeLedger {
	t.Helper()
	f := &FakeLedger{
		ordinals:  NewOrdinals(),
		fibers:    make(map[string]*fakeFiber),
		snapshots: make(map[int64][]byte),
	}
	for _, opt := range opts {
		opt(f)
	}

	mux := http.NewServeMux()
	paths := ledger.DefaultEndpoints()
	mux.HandleFunc("POST "+paths.Submit, f.handleSubmit)
	mux.HandleFunc("GET "+paths.Fiber, f.handleFiber)
	mux.HandleFunc("GET "+paths.FiberSequence, f.handleSequence)
	mux.HandleFunc("GET "+paths.LatestSnapshot, f.handleLatestSnapshot)
	mux.HandleFunc("GET "+paths.LatestOrdinal, f.handleLatestOrdinal)
	mux.HandleFunc("GET "+paths.Snapshot, f.handleSnapshot)
	mux.HandleFunc("GET "+paths.EpochProgress, f.handleEpoch)
	mux.HandleFunc("GET "+paths.Rejections, f.handleRejections)

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

// URL is the base URL serving every endpoint.
func (f *FakeLedger) URL() string {
	return f.srv.URL
}

// Client returns a ledger.Client pointed at the fake.
func (f *FakeLedger) Client(t testing.TB, opts ...ledger.Option) *ledger.Client {
	t.Helper()
	c, err := ledger.New(f.srv.URL, f.srv.URL, opts...)
	if err != nil {
		t.Fatalf("ledger client: %v", err)
	}
	return c
}

// FailNextSubmit makes the next submission fail synchronously.
func (f *FakeLedger) FailNextSubmit(status int, code, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = append(f.faults, injectedFault{status: status, code: code, message: msg})
}

// Submitted returns how many submissions were accepted.
func (f *FakeLedger) Submitted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitted
}

// Pending returns how many accepted updates await validation.
func (f *FakeLedger) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Rejections returns every rejection recorded so far.
func (f *FakeLedger) Rejections() []rejection.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]rejection.Record(nil), f.rejections...)
}

// Fiber returns the committed state of a fiber.
func (f *FakeLedger) Fiber(id string) (ledger.FiberRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fb, ok := f.fibers[id]
	if !ok {
		return ledger.FiberRecord{}, false
	}
	return fb.record(), true
}

// Flush validates pending updates into a new snapshot and returns its
// ordinal. Returns the current ordinal when nothing is pending.
func (f *FakeLedger) Flush() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flushLocked()
}

func (f *FakeLedger) flushLocked() int64 {
	if len(f.pending) == 0 {
		return f.ordinals.Current()
	}
	ordinal := f.ordinals.Next()
	logs := make(map[string][]any)

	for _, u := range f.pending {
		entry, errs := f.apply(u, ordinal)
		if len(errs) > 0 {
			f.rejections = append(f.rejections, rejection.Record{
				UpdateType: string(u.msg.Kind()),
				FiberID:    message.FiberID(u.msg),
				Ordinal:    ordinal,
				UpdateHash: u.hash,
				Errors:     errs,
				Signers:    u.signers,
			})
			continue
		}
		if entry != nil {
			id := message.FiberID(u.msg)
			logs[id] = append(logs[id], entry)
		}
	}
	f.pending = nil
	f.snapshots[ordinal] = f.snapshotLocked(ordinal, logs)
	return ordinal
}

func reject(code, format string, args ...any) []rejection.ErrorEntry {
	return []rejection.ErrorEntry{{Code: code, Message: fmt.Sprintf(format, args...)}}
}

// apply validates one update against committed state and applies it.
// Returns the log entry to publish, if any.
func (f *FakeLedger) apply(u pendingUpdate, ordinal int64) (map[string]any, []rejection.ErrorEntry) {
	switch m := u.msg.(type) {
	case message.CreateStateMachine:
		if _, exists := f.fibers[m.FiberID]; exists {
			return nil, reject(CodeFiberAlreadyExists, "fiber %s already exists", m.FiberID)
		}
		var def Definition
		if err := json.Unmarshal(m.Definition, &def); err != nil || def.InitialState == "" {
			return nil, reject(CodeInvalidDefinition, "definition needs initialState")
		}
		f.fibers[m.FiberID] = &fakeFiber{
			id: m.FiberID, def: def, state: def.InitialState, data: m.InitialData,
			status: "Active", owners: u.signers, parent: m.ParentFiberID, lastOrdinal: ordinal,
		}
		return nil, nil

	case message.CreateScript:
		if _, exists := f.fibers[m.FiberID]; exists {
			return nil, reject(CodeFiberAlreadyExists, "fiber %s already exists", m.FiberID)
		}
		f.fibers[m.FiberID] = &fakeFiber{
			id: m.FiberID, script: true, state: "ready", data: m.InitialState,
			status: "Active", owners: u.signers, lastOrdinal: ordinal,
		}
		return nil, nil

	case message.TransitionStateMachine:
		fb, errs := f.active(m.FiberID, &m.TargetSequenceNumber)
		if errs != nil {
			return nil, errs
		}
		next, ok := fb.def.Transitions[fb.state][m.EventName]
		if !ok {
			return nil, reject(rejection.CodeNoTransitionForEvent, "no transition for %q from %q", m.EventName, fb.state)
		}
		if key, guarded := fb.def.Guards[m.EventName]; guarded {
			var payload map[string]any
			if json.Unmarshal(m.Payload, &payload) != nil || payload[key] == nil {
				return nil, reject(CodeGuardFailed, "guard for %q requires payload.%s", m.EventName, key)
			}
		}
		from := fb.state
		fb.state, fb.seq, fb.data, fb.lastOrdinal = next, fb.seq+1, m.Payload, ordinal
		return map[string]any{
			"fiberId": fb.id, "eventName": m.EventName, "success": true,
			"fromState": from, "toState": next, "ordinal": ordinal,
		}, nil

	case message.ArchiveStateMachine:
		fb, errs := f.active(m.FiberID, &m.TargetSequenceNumber)
		if errs != nil {
			return nil, errs
		}
		fb.status, fb.seq, fb.lastOrdinal = "Archived", fb.seq+1, ordinal
		return nil, nil

	case message.InvokeScript:
		fb, errs := f.active(m.FiberID, m.TargetSequenceNumber)
		if errs != nil {
			return nil, errs
		}
		fb.seq, fb.lastOrdinal = fb.seq+1, ordinal
		return map[string]any{
			"fiberId": fb.id, "method": m.Method, "args": m.Args,
			"result": map[string]any{"echo": m.Args}, "ordinal": ordinal,
		}, nil
	}
	return nil, reject(CodeInvalidEnvelope, "unsupported update")
}

func (f *FakeLedger) active(id string, target *int64) (*fakeFiber, []rejection.ErrorEntry) {
	fb, ok := f.fibers[id]
	if !ok {
		return nil, reject(CodeFiberNotFound, "fiber %s not found", id)
	}
	if fb.status != "Active" {
		return nil, reject(CodeFiberNotActive, "fiber %s is %s", id, fb.status)
	}
	if target != nil && *target != fb.seq {
		return nil, reject(rejection.CodeSequenceNumberMismatch, "expected sequence %d, got %d", fb.seq, *target)
	}
	return fb, nil
}

// snapshotLocked renders a snapshot whose onChainState is a signed-byte
// array of the canonical state document.
func (f *FakeLedger) snapshotLocked(ordinal int64, logs map[string][]any) []byte {
	fibers := make(map[string]any, len(f.fibers))
	for id, fb := range f.fibers {
		st := map[string]any{
			"fiberId":        fb.id,
			"currentState":   fb.state,
			"sequenceNumber": fb.seq,
			"status":         fb.status,
		}
		if len(fb.data) > 0 {
			st["stateData"] = fb.data
		}
		fibers[id] = st
	}
	state := canon.MustMarshal(map[string]any{"fibers": fibers, "logs": logs})

	signed := make([]int, len(state))
	for i, b := range state {
		signed[i] = int(int8(b))
	}
	return canon.MustMarshal(map[string]any{
		"value": map[string]any{
			"ordinal": ordinal,
			"dataApplication": map[string]any{
				"onChainState": signed,
				"blocks":       []any{},
			},
		},
	})
}

func (f *FakeLedger) readSync() {
	if !f.lagging {
		f.flushLocked()
	}
}

type wireSubmission struct {
	Value  json.RawMessage `json:"value"`
	Proofs []signing.Proof `json:"proofs"`
}

func (f *FakeLedger) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var sub wireSubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidEnvelope, err.Error())
		return
	}
	msg, err := message.Decode(sub.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidEnvelope, err.Error())
		return
	}
	value, err := canon.Parse(sub.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidEnvelope, err.Error())
		return
	}

	sm := &signing.SignedMessage{Value: value, Proofs: sub.Proofs}
	res := sm.VerifyAll(context.Background())
	if len(sub.Proofs) == 0 || !res.OK() {
		writeError(w, http.StatusBadRequest, CodeInvalidSignature, fmt.Sprintf("%d of %d proofs invalid", len(res.Invalid), len(sub.Proofs)))
		return
	}
	hash, err := signing.ContentHash(value)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidEnvelope, err.Error())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.faults) > 0 {
		fault := f.faults[0]
		f.faults = f.faults[1:]
		writeError(w, fault.status, fault.code, fault.message)
		return
	}
	f.submitted++
	f.pending = append(f.pending, pendingUpdate{hash: hash, msg: msg, signers: sm.Signers()})
	writeJSON(w, http.StatusOK, ledger.SubmitResult{Hash: hash})
}

func (f *FakeLedger) handleFiber(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readSync()

	fb, ok := f.fibers[r.PathValue("id")]
	if !ok {
		writeError(w, http.StatusNotFound, CodeFiberNotFound, "fiber not found")
		return
	}
	writeJSON(w, http.StatusOK, fb.record())
}

func (f *FakeLedger) handleSequence(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readSync()

	id := r.PathValue("id")
	fb, ok := f.fibers[id]
	if !ok {
		writeError(w, http.StatusNotFound, CodeFiberNotFound, "fiber not found")
		return
	}
	writeJSON(w, http.StatusOK, ledger.SequenceRecord{FiberID: id, SequenceNumber: fb.seq})
}

func (f *FakeLedger) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	ordinal, err := strconv.ParseInt(r.PathValue("ordinal"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidOrdinal", err.Error())
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readSync()
	f.writeSnapshot(w, ordinal)
}

func (f *FakeLedger) handleLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readSync()
	f.writeSnapshot(w, f.ordinals.Current())
}

func (f *FakeLedger) writeSnapshot(w http.ResponseWriter, ordinal int64) {
	snap, ok := f.snapshots[ordinal]
	if !ok {
		writeError(w, http.StatusNotFound, "SnapshotNotFound", fmt.Sprintf("no snapshot %d", ordinal))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(snap)
}

func (f *FakeLedger) handleLatestOrdinal(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readSync()
	writeJSON(w, http.StatusOK, map[string]int64{"value": f.ordinals.Current()})
}

func (f *FakeLedger) handleEpoch(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readSync()
	cur := f.ordinals.Current()
	writeJSON(w, http.StatusOK, ledger.EpochProgress{Epoch: cur / 10, Ordinal: cur})
}

func (f *FakeLedger) handleRejections(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := rejection.Filter{
		FiberID:    q.Get("fiberId"),
		UpdateType: q.Get("updateType"),
		Signer:     q.Get("signer"),
		ErrorCode:  q.Get("errorCode"),
	}
	var err error
	if filter.Limit, err = atoiDefault(q.Get("limit"), rejection.MaxPageLimit); err == nil {
		filter.Offset, err = atoiDefault(q.Get("offset"), 0)
	}
	for _, p := range []struct {
		key string
		dst **int64
	}{{"fromOrdinal", &filter.FromOrdinal}, {"toOrdinal", &filter.ToOrdinal}} {
		if err != nil || q.Get(p.key) == "" {
			continue
		}
		var v int64
		v, err = strconv.ParseInt(q.Get(p.key), 10, 64)
		*p.dst = &v
	}
	if err == nil {
		err = filter.Validate()
	}
	if err != nil || filter.Limit == 0 {
		writeError(w, http.StatusBadRequest, "InvalidFilter", fmt.Sprint(err))
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.readSync()

	var matched []rejection.Record
	for _, rec := range f.rejections {
		if matches(filter, rec) {
			matched = append(matched, rec)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Ordinal < matched[j].Ordinal })

	page := rejection.Page{Rejections: []rejection.Record{}, Total: len(matched)}
	if filter.Offset < len(matched) {
		end := min(filter.Offset+filter.Limit, len(matched))
		page.Rejections = matched[filter.Offset:end]
		page.HasMore = end < len(matched)
	}
	writeJSON(w, http.StatusOK, page)
}

func matches(f rejection.Filter, r rejection.Record) bool {
	if f.FiberID != "" && r.FiberID != f.FiberID {
		return false
	}
	if f.UpdateType != "" && r.UpdateType != f.UpdateType {
		return false
	}
	if f.FromOrdinal != nil && r.Ordinal < *f.FromOrdinal {
		return false
	}
	if f.ToOrdinal != nil && r.Ordinal > *f.ToOrdinal {
		return false
	}
	if f.Signer != "" && !contains(r.Signers, f.Signer) {
		return false
	}
	if f.ErrorCode != "" && !contains(r.Codes(), f.ErrorCode) {
		return false
	}
	return true
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func atoiDefault(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"code": code, "message": msg})
}
