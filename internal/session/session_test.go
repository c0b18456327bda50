package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/execsim/personachat/internal/conversation"
	"github.com/execsim/personachat/internal/gateway"
	"github.com/execsim/personachat/internal/persona"
	"github.com/execsim/personachat/internal/store"
)

type gatewayCall struct {
	system  string
	history []conversation.Turn
}

type fakeGateway struct {
	calls []gatewayCall
	reply string
	err   error
}

func (f *fakeGateway) Complete(_ context.Context, systemPrompt string, history []conversation.Turn) (string, error) {
	hist := make([]conversation.Turn, len(history))
	copy(hist, history)
	f.calls = append(f.calls, gatewayCall{system: systemPrompt, history: hist})
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fakeStore struct {
	records   map[string]conversation.Record
	upserts   int
	upsertErr error
	getErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]conversation.Record{}}
}

func (f *fakeStore) Upsert(_ context.Context, rec conversation.Record) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	msgs := make([]conversation.Turn, len(rec.Messages))
	copy(msgs, rec.Messages)
	rec.Messages = msgs
	f.records[rec.ID] = rec
	f.upserts++
	return nil
}

func (f *fakeStore) Get(_ context.Context, id string) (conversation.Record, error) {
	if f.getErr != nil {
		return conversation.Record{}, f.getErr
	}
	rec, ok := f.records[id]
	if !ok {
		return conversation.Record{}, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	return rec, nil
}

func newTestReconciler(fs *fakeStore, fg *fakeGateway) *Reconciler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := New(fs, fg, logger)
	n := 0
	r.newID = func() (string, error) {
		n++
		return fmt.Sprintf("id-%04d", n), nil
	}
	return r
}

func companySetState(t *testing.T, r *Reconciler) State {
	t.Helper()
	st, err := r.SetCompanyReference(r.StartNew(), "https://www.linkedin.com/company/acme-robotics/")
	require.NoError(t, err)
	return st
}

func TestStartNewResetsEverything(t *testing.T) {
	r := newTestReconciler(newFakeStore(), &fakeGateway{})

	st := r.StartNew()

	assert.Equal(t, ModeNew, st.Mode)
	assert.Equal(t, persona.CEO, st.Persona)
	assert.Empty(t, st.ID)
	assert.Empty(t, st.CompanyRef)
	assert.Empty(t, st.CompanyName)
	assert.Empty(t, st.Messages)
}

func TestSetCompanyReferenceDerivesName(t *testing.T) {
	r := newTestReconciler(newFakeStore(), &fakeGateway{})

	st, err := r.SetCompanyReference(r.StartNew(), "https://www.linkedin.com/company/acme-robotics/")

	require.NoError(t, err)
	assert.Equal(t, "Acme Robotics", st.CompanyName)
	assert.Equal(t, "https://www.linkedin.com/company/acme-robotics/", st.CompanyRef)
}

func TestSetCompanyReferenceMalformed(t *testing.T) {
	r := newTestReconciler(newFakeStore(), &fakeGateway{})
	prev := r.StartNew()

	st, err := r.SetCompanyReference(prev, "not-a-url")

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, prev, st, "state must be untouched on a malformed reference")

	// Submission stays blocked until the reference is corrected.
	_, err = r.SubmitTurn(context.Background(), st, "hello")
	require.ErrorAs(t, err, &verr)
}

func TestSetCompanyReferenceUnchangedIsNoop(t *testing.T) {
	r := newTestReconciler(newFakeStore(), &fakeGateway{})
	derivations := 0
	r.extractName = func(ref string) (string, bool) {
		derivations++
		return "Acme Robotics", true
	}

	st, err := r.SetCompanyReference(r.StartNew(), "https://www.linkedin.com/company/acme-robotics/")
	require.NoError(t, err)
	st, err = r.SetCompanyReference(st, "https://www.linkedin.com/company/acme-robotics/")
	require.NoError(t, err)

	assert.Equal(t, 1, derivations)
}

func TestSetPersonaPreservesConversation(t *testing.T) {
	r := newTestReconciler(newFakeStore(), &fakeGateway{})
	st := companySetState(t, r)
	st.Mode = ModeActive
	st.ID = "abc"
	st.Messages = []conversation.Turn{
		{Role: conversation.RoleUser, Content: "hi"},
		{Role: conversation.RoleAssistant, Content: "hello"},
	}

	next := r.SetPersona(st, persona.CTO)

	assert.Equal(t, persona.CTO, next.Persona)
	assert.Equal(t, st.Mode, next.Mode)
	assert.Equal(t, st.ID, next.ID)
	assert.Equal(t, st.CompanyRef, next.CompanyRef)
	assert.Equal(t, st.CompanyName, next.CompanyName)
	assert.Equal(t, st.Messages, next.Messages)
}

func TestFirstTurnTransitionsNewToActive(t *testing.T) {
	fs := newFakeStore()
	fg := &fakeGateway{reply: "We have about eighteen months of runway."}
	r := newTestReconciler(fs, fg)

	st := companySetState(t, r)
	st = r.SetPersona(st, persona.CFO)

	st, err := r.SubmitTurn(context.Background(), st, "What's our runway?")
	require.NoError(t, err)

	assert.Equal(t, ModeActive, st.Mode)
	assert.NotEmpty(t, st.ID)

	// Exactly one gateway call: the system prompt plus the single user
	// turn (two wire messages).
	require.Len(t, fg.calls, 1)
	assert.Contains(t, fg.calls[0].system, "Acme Robotics")
	assert.Contains(t, fg.calls[0].system, "Chief Financial Officer")
	require.Len(t, fg.calls[0].history, 1)
	assert.Equal(t, conversation.RoleUser, fg.calls[0].history[0].Role)

	require.Len(t, st.Messages, 2)
	assert.Equal(t, conversation.RoleAssistant, st.Messages[1].Role)

	persisted, err := fs.Get(context.Background(), st.ID)
	require.NoError(t, err)
	assert.Equal(t, st.Record(), persisted)
}

func TestSubmitTurnRequiresCompany(t *testing.T) {
	r := newTestReconciler(newFakeStore(), &fakeGateway{reply: "x"})

	_, err := r.SubmitTurn(context.Background(), r.StartNew(), "hello")

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestSubmitTurnRequiresInput(t *testing.T) {
	fg := &fakeGateway{reply: "x"}
	r := newTestReconciler(newFakeStore(), fg)
	st := companySetState(t, r)

	_, err := r.SubmitTurn(context.Background(), st, "   ")

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, fg.calls)
}

func TestSubmitTurnRejectedWhenFresh(t *testing.T) {
	r := newTestReconciler(newFakeStore(), &fakeGateway{reply: "x"})

	_, err := r.SubmitTurn(context.Background(), State{}, "hello")

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestGatewayFailureKeepsUserTurnUnpersisted(t *testing.T) {
	fs := newFakeStore()
	fg := &fakeGateway{err: &gateway.Error{Provider: "openai", Err: errors.New("connection reset")}}
	r := newTestReconciler(fs, fg)
	prev := companySetState(t, r)

	st, err := r.SubmitTurn(context.Background(), prev, "hello")

	var gerr *gateway.Error
	require.ErrorAs(t, err, &gerr)

	// The user's turn stays in memory so a resubmission can retry it,
	// but nothing is persisted and the identity is unchanged.
	require.Len(t, st.Messages, 1)
	assert.Equal(t, conversation.RoleUser, st.Messages[0].Role)
	assert.Equal(t, prev.Mode, st.Mode)
	assert.Equal(t, prev.ID, st.ID)
	assert.Zero(t, fs.upserts)

	// The caller's previous value is untouched.
	assert.Empty(t, prev.Messages)
}

func TestResolverFailureSkipsGateway(t *testing.T) {
	fs := newFakeStore()
	fg := &fakeGateway{reply: "x"}
	r := newTestReconciler(fs, fg)
	r.resolve = func(p persona.Persona, data map[string]string) (string, error) {
		return "", &persona.ResolutionError{Persona: p, Placeholder: "industry"}
	}
	st := companySetState(t, r)

	st, err := r.SubmitTurn(context.Background(), st, "hello")

	var rerr *persona.ResolutionError
	require.ErrorAs(t, err, &rerr)
	assert.Empty(t, fg.calls)
	assert.Zero(t, fs.upserts)
	require.Len(t, st.Messages, 1)
}

func TestStoreFailureKeepsTurnInMemory(t *testing.T) {
	fs := newFakeStore()
	fs.upsertErr = &store.UnavailableError{Op: "put conversation", Err: errors.New("throttled")}
	fg := &fakeGateway{reply: "hi there"}
	r := newTestReconciler(fs, fg)
	st := companySetState(t, r)

	st, err := r.SubmitTurn(context.Background(), st, "hello")

	var serr *store.UnavailableError
	require.ErrorAs(t, err, &serr)

	// Both turns survive in memory; the id allocation stands so a
	// retried upsert targets the same record.
	require.Len(t, st.Messages, 2)
	assert.Equal(t, ModeActive, st.Mode)
	assert.NotEmpty(t, st.ID)

	fs.upsertErr = nil
	require.NoError(t, fs.Upsert(context.Background(), st.Record()))
}

func TestResumeAppendsToStoredConversation(t *testing.T) {
	fs := newFakeStore()
	fs.records["abc"] = conversation.Record{
		ID:          "abc",
		Persona:     persona.CTO,
		CompanyRef:  "https://www.linkedin.com/company/acme-robotics/",
		CompanyName: "Acme Robotics",
		Messages: []conversation.Turn{
			{Role: conversation.RoleUser, Content: "q1"},
			{Role: conversation.RoleAssistant, Content: "a1"},
			{Role: conversation.RoleUser, Content: "q2"},
			{Role: conversation.RoleAssistant, Content: "a2"},
		},
	}
	fg := &fakeGateway{reply: "a3"}
	r := newTestReconciler(fs, fg)

	st, err := r.Load(context.Background(), r.StartNew(), "abc")
	require.NoError(t, err)
	assert.Equal(t, ModeActive, st.Mode)
	assert.Equal(t, persona.CTO, st.Persona)

	st, err = r.SubmitTurn(context.Background(), st, "q3")
	require.NoError(t, err)

	assert.Equal(t, "abc", st.ID)
	require.Len(t, st.Messages, 6)

	persisted, err := fs.Get(context.Background(), "abc")
	require.NoError(t, err)
	require.Len(t, persisted.Messages, 6)

	// The gateway saw the full history: four prior turns plus the new
	// user turn.
	require.Len(t, fg.calls, 1)
	assert.Len(t, fg.calls[0].history, 5)
}

func TestLoadReplacesEveryField(t *testing.T) {
	fs := newFakeStore()
	fs.records["b"] = conversation.Record{
		ID:          "b",
		Persona:     persona.CIO,
		CompanyRef:  "https://www.linkedin.com/company/globex/",
		CompanyName: "Globex",
		Messages: []conversation.Turn{
			{Role: conversation.RoleUser, Content: "hi globex"},
		},
	}
	r := newTestReconciler(fs, &fakeGateway{})

	// A fully populated unrelated session, including enrichment text.
	prev := State{
		Mode:              ModeActive,
		ID:                "a",
		Persona:           persona.CFO,
		CompanyRef:        "https://www.linkedin.com/company/initech/",
		CompanyName:       "Initech",
		CompanyBackground: "Initech builds TPS report software.",
		Messages: []conversation.Turn{
			{Role: conversation.RoleUser, Content: "hi initech"},
			{Role: conversation.RoleAssistant, Content: "hello"},
		},
	}

	st, err := r.Load(context.Background(), prev, "b")
	require.NoError(t, err)

	assert.Equal(t, State{
		Mode:        ModeActive,
		ID:          "b",
		Persona:     persona.CIO,
		CompanyRef:  "https://www.linkedin.com/company/globex/",
		CompanyName: "Globex",
		Messages: []conversation.Turn{
			{Role: conversation.RoleUser, Content: "hi globex"},
		},
	}, st, "no field from the previous session may leak into the loaded one")
}

func TestLoadFailureKeepsPreviousState(t *testing.T) {
	fs := newFakeStore()
	r := newTestReconciler(fs, &fakeGateway{})
	prev := companySetState(t, r)

	st, err := r.Load(context.Background(), prev, "missing")

	require.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, prev, st)

	fs.getErr = &store.UnavailableError{Op: "get conversation", Err: errors.New("timeout")}
	st, err = r.Load(context.Background(), prev, "whatever")

	var serr *store.UnavailableError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, prev, st)
}

func TestEachTurnGetsDistinctID(t *testing.T) {
	fs := newFakeStore()
	fg := &fakeGateway{reply: "ok"}
	r := newTestReconciler(fs, fg)

	a, err := r.SubmitTurn(context.Background(), companySetState(t, r), "first")
	require.NoError(t, err)
	b, err := r.SubmitTurn(context.Background(), companySetState(t, r), "second")
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Len(t, fs.records, 2)
}

func TestActiveTurnKeepsSameID(t *testing.T) {
	fs := newFakeStore()
	fg := &fakeGateway{reply: "ok"}
	r := newTestReconciler(fs, fg)

	st, err := r.SubmitTurn(context.Background(), companySetState(t, r), "first")
	require.NoError(t, err)
	id := st.ID

	st, err = r.SubmitTurn(context.Background(), st, "second")
	require.NoError(t, err)

	assert.Equal(t, id, st.ID)
	require.Len(t, st.Messages, 4)
	assert.Equal(t, 2, fs.upserts)
}

func TestCompanyBackgroundFeedsPrompt(t *testing.T) {
	fg := &fakeGateway{reply: "ok"}
	r := newTestReconciler(newFakeStore(), fg)

	st := companySetState(t, r)
	st = r.SetCompanyBackground(st, "Acme Robotics makes warehouse robots.")

	_, err := r.SubmitTurn(context.Background(), st, "what do you build?")
	require.NoError(t, err)

	require.Len(t, fg.calls, 1)
	assert.Contains(t, fg.calls[0].system, "warehouse robots")
}

func TestChangingCompanyDropsStaleBackground(t *testing.T) {
	r := newTestReconciler(newFakeStore(), &fakeGateway{})

	st := companySetState(t, r)
	st = r.SetCompanyBackground(st, "Acme background")

	st, err := r.SetCompanyReference(st, "https://www.linkedin.com/company/globex/")
	require.NoError(t, err)

	assert.Equal(t, "Globex", st.CompanyName)
	assert.Empty(t, st.CompanyBackground)
}
