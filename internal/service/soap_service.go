package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"abapractice/internal/database"
	"abapractice/internal/llm"
	"abapractice/internal/metrics"
	"abapractice/internal/models"
	"abapractice/internal/progress"
	"abapractice/internal/repository"
	"abapractice/internal/validation"
)

const soapSystemPrompt = `Você é um assistente de documentação clínica para uma psicóloga especializada em ABA.
Redija uma nota SOAP objetiva, em português, apenas com base nos dados fornecidos.
Não invente dados. Use exatamente quatro seções com os títulos:
Subjetivo:
Objetivo:
Avaliação:
Plano:`

// DraftInput is what the practitioner adds to the stored session data
type DraftInput struct {
	ObservedBehaviors []string `json:"observed_behaviors" validate:"max=50,dive,max=300"`
	Notes             string   `json:"notes" validate:"max=5000"`
}

// SOAPService drafts SOAP notes from a session's recorded data
type SOAPService struct {
	sessions    *repository.SessionRepository
	patients    *repository.PatientRepository
	goals       *repository.GoalRepository
	entries     *repository.ProgressRepository
	completer   llm.Completer
	callTimeout time.Duration
	logger      *zap.Logger
}

// NewSOAPService creates the service. A nil completer disables drafting.
func NewSOAPService(db *database.DB, completer llm.Completer, callTimeout time.Duration, logger *zap.Logger) *SOAPService {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &SOAPService{
		sessions:    repository.NewSessionRepository(db),
		patients:    repository.NewPatientRepository(db),
		goals:       repository.NewGoalRepository(db),
		entries:     repository.NewProgressRepository(db),
		completer:   completer,
		callTimeout: callTimeout,
		logger:      logger,
	}
}

// Enabled reports whether a drafting backend is configured
func (s *SOAPService) Enabled() bool {
	return s.completer != nil
}

// Draft builds a SOAP note for one of the practitioner's sessions. Any
// backend failure is reported as ErrDraftUnavailable; an unparseable reply
// is still returned in Raw.
func (s *SOAPService) Draft(ctx context.Context, psychologistID string, sessionID int64, in DraftInput) (*models.SOAPNote, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if !s.Enabled() {
		metrics.SOAPDrafts.WithLabelValues("disabled").Inc()
		return nil, ErrDraftUnavailable
	}

	session, err := s.sessions.GetSession(ctx, psychologistID, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, &NotFoundError{Resource: "session"}
	}
	patient, err := s.patients.GetPatient(ctx, psychologistID, session.PatientID)
	if err != nil {
		return nil, err
	}
	if patient == nil {
		return nil, &NotFoundError{Resource: "patient"}
	}
	goals, err := s.goals.ListGoals(ctx, psychologistID, session.PatientID)
	if err != nil {
		return nil, err
	}
	entries, err := s.entries.ListBySession(ctx, psychologistID, sessionID)
	if err != nil {
		return nil, err
	}

	prompt := buildSOAPPrompt(patient, session, goals, entries, in)

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	reply, err := s.completer.Complete(callCtx, soapSystemPrompt, prompt)
	cancel()
	metrics.SOAPDraftLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SOAPDrafts.WithLabelValues("error").Inc()
		s.logger.Warn("soap draft failed", zap.Int64("session_id", sessionID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrDraftUnavailable, err)
	}

	note, ok := ParseSOAPNote(reply)
	if !ok {
		metrics.SOAPDrafts.WithLabelValues("unparseable").Inc()
		return &note, ErrDraftUnavailable
	}
	metrics.SOAPDrafts.WithLabelValues("ok").Inc()
	return &note, nil
}

func buildSOAPPrompt(patient *models.Patient, session *models.Session, goals []models.Goal, entries []models.ProgressEntry, in DraftInput) string {
	goalNames := make(map[int64]string, len(goals))
	for _, g := range goals {
		goalNames[g.ID] = g.Name
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Paciente: %s\n", patient.Name)
	if len(patient.Diagnoses) > 0 {
		fmt.Fprintf(&b, "Diagnósticos: %s\n", strings.Join(patient.Diagnoses, ", "))
	}
	fmt.Fprintf(&b, "Data da sessão: %s\n", session.DateKey())
	fmt.Fprintf(&b, "Tipo de sessão: %s\n", session.SessionType)
	fmt.Fprintf(&b, "Duração: %d minutos\n", session.DurationMinutes)

	if len(entries) > 0 {
		b.WriteString("\nResultados de tentativas discretas:\n")
		for _, e := range entries {
			name := goalNames[e.GoalID]
			if name == "" {
				name = fmt.Sprintf("meta %d", e.GoalID)
			}
			label := progress.DefaultPromptLabels[e.PromptLevel]
			if label == "" {
				label = string(e.PromptLevel)
			}
			if e.Trials > 0 {
				fmt.Fprintf(&b, "- %s: %d/%d corretas (%.0f%%), dica: %s\n", name, e.Correct, e.Trials, float64(e.Correct)*100/float64(e.Trials), label)
			} else {
				fmt.Fprintf(&b, "- %s: sem tentativas registradas, dica: %s\n", name, label)
			}
		}
	}

	behaviors := make([]string, 0, len(in.ObservedBehaviors))
	for _, obs := range in.ObservedBehaviors {
		if obs = strings.TrimSpace(obs); obs != "" {
			behaviors = append(behaviors, obs)
		}
	}
	if len(behaviors) > 0 {
		b.WriteString("\nComportamentos observados:\n")
		for _, obs := range behaviors {
			fmt.Fprintf(&b, "- %s\n", obs)
		}
	}

	notes := strings.TrimSpace(in.Notes)
	if notes == "" {
		notes = strings.TrimSpace(session.Notes)
	}
	if notes != "" {
		fmt.Fprintf(&b, "\nObservações da terapeuta:\n%s\n", notes)
	}
	return b.String()
}

var soapHeadings = map[string]string{
	"s": "s", "subjective": "s", "subjetivo": "s",
	"o": "o", "objective": "o", "objetivo": "o",
	"a": "a", "assessment": "a", "avaliação": "a", "avaliacao": "a",
	"p": "p", "plan": "p", "plano": "p",
}

// soapHeading recognizes a section heading line such as "**Subjetivo:** texto"
// and returns the section key and any text after the heading
func soapHeading(line string) (string, string, bool) {
	trimmed := strings.TrimLeft(strings.TrimSpace(line), "#*- ")
	head, rest, found := strings.Cut(trimmed, ":")
	if !found {
		head = trimmed
	}
	head = strings.ToLower(strings.Trim(strings.TrimSpace(head), "*"))
	key, ok := soapHeadings[head]
	if !ok {
		return "", "", false
	}
	return key, strings.TrimSpace(strings.TrimLeft(rest, "*")), true
}

// ParseSOAPNote splits a reply into its four sections. It reports false when
// any section is missing; Raw always carries the full reply.
func ParseSOAPNote(text string) (models.SOAPNote, bool) {
	note := models.SOAPNote{Raw: text}
	sections := map[string]*strings.Builder{}
	current := ""

	for _, line := range strings.Split(text, "\n") {
		if key, rest, ok := soapHeading(line); ok {
			current = key
			if sections[key] == nil {
				sections[key] = &strings.Builder{}
			}
			if rest != "" {
				sections[key].WriteString(rest + "\n")
			}
			continue
		}
		if current != "" {
			sections[current].WriteString(line + "\n")
		}
	}

	get := func(k string) string {
		if b := sections[k]; b != nil {
			return strings.TrimSpace(b.String())
		}
		return ""
	}
	note.Subjective = get("s")
	note.Objective = get("o")
	note.Assessment = get("a")
	note.Plan = get("p")

	ok := note.Subjective != "" && note.Objective != "" && note.Assessment != "" && note.Plan != ""
	return note, ok
}
