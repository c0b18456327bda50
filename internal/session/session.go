// Package session holds the conversation state machine. A session moves
// between three modes (fresh: nothing selected, new: unpersisted, active:
// bound to a stored conversation id), and every UI interaction maps to
// exactly one operation here. State is an explicit value passed
// in and returned, never shared mutable storage: on failure the previous
// value is still valid and the operation reports what went wrong.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/execsim/personachat/internal/company"
	"github.com/execsim/personachat/internal/conversation"
	"github.com/execsim/personachat/internal/gateway"
	"github.com/execsim/personachat/internal/persona"
)

var tracer = otel.Tracer("personachat/session")

// Mode discriminates what the session is bound to.
type Mode int

const (
	// ModeFresh is the initial state: no conversation selected yet.
	ModeFresh Mode = iota
	// ModeNew is a brand-new conversation that has not been persisted.
	ModeNew
	// ModeActive is bound to a persisted conversation id.
	ModeActive
)

func (m Mode) String() string {
	switch m {
	case ModeNew:
		return "new"
	case ModeActive:
		return "active"
	}
	return "fresh"
}

// State is the working state of the active conversation. Exactly one
// conversation is active at a time; switching persona, company, or
// stored conversation replaces fields atomically, never merging two
// records.
type State struct {
	Mode        Mode
	ID          string
	Persona     persona.Persona
	CompanyRef  string
	CompanyName string

	// CompanyBackground is optional enriched profile text for the
	// prompt. In-memory only; it is re-fetched, not persisted.
	CompanyBackground string

	Messages []conversation.Turn
}

// Record snapshots the state as a persistable conversation record.
func (s State) Record() conversation.Record {
	return conversation.Record{
		ID:          s.ID,
		Persona:     s.Persona,
		CompanyRef:  s.CompanyRef,
		CompanyName: s.CompanyName,
		Messages:    s.Messages,
	}
}

// ValidationError blocks an action until the user corrects their input.
// It never changes session state.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Store is the slice of the conversation store the reconciler needs.
type Store interface {
	Upsert(ctx context.Context, rec conversation.Record) error
	Get(ctx context.Context, id string) (conversation.Record, error)
}

// PromptResolver builds a system prompt for a persona from company data.
type PromptResolver func(p persona.Persona, companyData map[string]string) (string, error)

// NameExtractor derives a display name from a company reference,
// reporting false for malformed input.
type NameExtractor func(ref string) (string, bool)

// Reconciler owns the transition rules and orchestrates turn execution.
type Reconciler struct {
	store       Store
	gateway     gateway.Gateway
	resolve     PromptResolver
	extractName NameExtractor
	newID       func() (string, error)
	log         *slog.Logger
}

// New wires a reconciler with the production collaborators.
func New(st Store, gw gateway.Gateway, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:       st,
		gateway:     gw,
		resolve:     persona.Resolve,
		extractName: company.ExtractName,
		newID:       conversation.NewID,
		log:         logger,
	}
}

// StartNew resets to a blank new conversation. The reset is
// unconditional: no messages, company, or identity carry over from
// whatever was active before.
func (r *Reconciler) StartNew() State {
	return State{Mode: ModeNew, Persona: persona.Default}
}

// Load fetches a stored conversation and binds the session to it,
// replacing every field from the fetched record. On any failure the
// previous state is returned unchanged; there is no partial transition.
func (r *Reconciler) Load(ctx context.Context, prev State, id string) (State, error) {
	rec, err := r.store.Get(ctx, id)
	if err != nil {
		return prev, err
	}

	msgs := make([]conversation.Turn, len(rec.Messages))
	copy(msgs, rec.Messages)

	return State{
		Mode:        ModeActive,
		ID:          rec.ID,
		Persona:     rec.Persona,
		CompanyRef:  rec.CompanyRef,
		CompanyName: rec.CompanyName,
		Messages:    msgs,
	}, nil
}

// SetPersona updates the persona in place. Messages, company, and
// identity are untouched: the persona is mutable mid-conversation, so a
// transcript can mix voices across a switch.
func (r *Reconciler) SetPersona(st State, p persona.Persona) State {
	st.Persona = p
	return st
}

// SetCompanyReference re-derives the company name when the reference
// actually changes. Malformed references return a *ValidationError and
// leave the state untouched; turn submission stays blocked until the
// reference is corrected.
func (r *Reconciler) SetCompanyReference(st State, ref string) (State, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" || ref == st.CompanyRef {
		return st, nil
	}

	name, ok := r.extractName(ref)
	if !ok {
		return st, &ValidationError{Reason: fmt.Sprintf("%q does not look like a company profile URL", ref)}
	}

	st.CompanyRef = ref
	st.CompanyName = name
	st.CompanyBackground = ""
	return st, nil
}

// SetCompanyBackground attaches enriched profile text for the prompt.
func (r *Reconciler) SetCompanyBackground(st State, text string) State {
	st.CompanyBackground = strings.TrimSpace(text)
	return st
}

// SubmitTurn executes one full user turn: append the user message,
// resolve the persona prompt, call the completion gateway, append the
// assistant reply, and persist the whole record. A new conversation gets
// its id allocated on its first successful turn. If the resolver or
// gateway fails, the user turn stays in the returned state but nothing
// is persisted; the user may resubmit.
func (r *Reconciler) SubmitTurn(ctx context.Context, st State, input string) (State, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return st, &ValidationError{Reason: "message is empty"}
	}
	if st.Mode == ModeFresh {
		return st, &ValidationError{Reason: "no conversation selected"}
	}
	if st.CompanyRef == "" || st.CompanyName == "" {
		return st, &ValidationError{Reason: "set a company profile URL before chatting"}
	}

	ctx, span := tracer.Start(ctx, "session.submit_turn")
	defer span.End()
	span.SetAttributes(
		attribute.String("persona", string(st.Persona)),
		attribute.String("mode", st.Mode.String()),
	)

	// Copy-on-append so a caller retrying with the prior state value
	// never sees this turn through a shared backing array.
	msgs := make([]conversation.Turn, len(st.Messages), len(st.Messages)+2)
	copy(msgs, st.Messages)
	st.Messages = append(msgs, conversation.Turn{Role: conversation.RoleUser, Content: input})

	prompt, err := r.resolve(st.Persona, r.companyData(st))
	if err != nil {
		span.SetStatus(codes.Error, "prompt resolution failed")
		return st, err
	}

	reply, err := r.gateway.Complete(ctx, prompt, st.Messages)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return st, err
	}
	st.Messages = append(st.Messages, conversation.Turn{Role: conversation.RoleAssistant, Content: reply})

	if st.Mode == ModeNew {
		id, err := r.newID()
		if err != nil {
			return st, fmt.Errorf("allocate conversation id: %w", err)
		}
		st.ID = id
		st.Mode = ModeActive
		r.log.Info("conversation started", "conversation_id", id, "persona", st.Persona, "company", st.CompanyName)
	}

	if err := r.store.Upsert(ctx, st.Record()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return st, err
	}

	r.log.Info("turn completed", "conversation_id", st.ID, "messages", len(st.Messages))
	return st, nil
}

func (r *Reconciler) companyData(st State) map[string]string {
	desc := st.CompanyBackground
	if desc == "" {
		desc = company.FallbackDescription
	}
	return map[string]string{
		"name":        st.CompanyName,
		"description": desc,
	}
}
