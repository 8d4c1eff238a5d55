package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"abapractice/internal/models"
	"abapractice/internal/repository"
)

// callLog records collaborator calls in order across fakes
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeIdentities struct {
	log         *callLog
	mu          sync.Mutex
	byEmail     map[string]string
	passwords   map[string]string
	nextID      int
	createErr   error
	deleteErr   error
	updateErr   error
	blockCreate bool
}

func newFakeIdentities(log *callLog) *fakeIdentities {
	return &fakeIdentities{log: log, byEmail: map[string]string{}, passwords: map[string]string{}}
}

func (f *fakeIdentities) AdminCreateUser(ctx context.Context, email, password string, metadata map[string]string) (string, error) {
	f.log.add("identity.create %s", email)
	if f.blockCreate {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.createErr != nil {
		return "", f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byEmail[email]; ok {
		return "", ErrEmailTaken
	}
	f.nextID++
	id := fmt.Sprintf("guardian-%d", f.nextID)
	f.byEmail[email] = id
	f.passwords[id] = password
	return id, nil
}

func (f *fakeIdentities) AdminDeleteUser(ctx context.Context, identityID string) error {
	f.log.add("identity.delete %s", identityID)
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for email, id := range f.byEmail {
		if id == identityID {
			delete(f.byEmail, email)
		}
	}
	delete(f.passwords, identityID)
	return nil
}

func (f *fakeIdentities) UpdatePassword(ctx context.Context, identityID, newPassword string) error {
	f.log.add("identity.update_password %s", identityID)
	if f.updateErr != nil {
		return f.updateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.passwords[identityID] = newPassword
	return nil
}

func (f *fakeIdentities) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byEmail)
}

type fakeProfiles struct {
	log       *callLog
	mu        sync.Mutex
	profiles  map[string]models.Profile
	createErr error
}

func newFakeProfiles(log *callLog) *fakeProfiles {
	return &fakeProfiles{log: log, profiles: map[string]models.Profile{}}
}

func (f *fakeProfiles) CreateProfile(ctx context.Context, id, fullName string, role models.Role) (*models.Profile, error) {
	f.log.add("profile.create %s", id)
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p := models.Profile{ID: id, FullName: fullName, Role: role}
	f.profiles[id] = p
	return &p, nil
}

func (f *fakeProfiles) DeleteProfile(ctx context.Context, id string) error {
	f.log.add("profile.delete %s", id)
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.profiles, id)
	return nil
}

func (f *fakeProfiles) has(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.profiles[id]
	return ok
}

type fakeAccesses struct {
	log        *callLog
	mu         sync.Mutex
	rows       []models.FamilyAccess
	patients   *fakePatients
	nextID     int64
	clock      time.Time
	createErr  error
	countErr   error
	restoreErr error
	onCreate   func()
}

func newFakeAccesses(log *callLog, patients *fakePatients) *fakeAccesses {
	return &fakeAccesses{log: log, patients: patients, clock: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (f *fakeAccesses) CreateAccess(ctx context.Context, a *models.FamilyAccess) error {
	f.log.add("access.create %s/%d", a.UserID, a.PatientID)
	if f.onCreate != nil {
		f.onCreate()
	}
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.UserID == a.UserID && r.PatientID == a.PatientID {
			return repository.ErrDuplicate
		}
	}
	f.nextID++
	f.clock = f.clock.Add(time.Minute)
	a.ID = f.nextID
	a.CreatedAt = f.clock
	f.rows = append(f.rows, *a)
	return nil
}

func (f *fakeAccesses) find(match func(models.FamilyAccess) bool) *models.FamilyAccess {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if match(r) {
			out := r
			return &out
		}
	}
	return nil
}

func (f *fakeAccesses) GetAccess(ctx context.Context, psychologistID string, id int64) (*models.FamilyAccess, error) {
	f.log.add("access.get %d", id)
	return f.find(func(r models.FamilyAccess) bool { return r.ID == id && r.PsychologistID == psychologistID }), nil
}

func (f *fakeAccesses) GetAccessForGuardian(ctx context.Context, userID string, id int64) (*models.FamilyAccess, error) {
	f.log.add("access.get_for_guardian %d", id)
	return f.find(func(r models.FamilyAccess) bool { return r.ID == id && r.UserID == userID }), nil
}

func (f *fakeAccesses) GetAccessByPatient(ctx context.Context, userID string, patientID int64) (*models.FamilyAccess, error) {
	return f.find(func(r models.FamilyAccess) bool { return r.PatientID == patientID && r.UserID == userID }), nil
}

func (f *fakeAccesses) DeleteAccess(ctx context.Context, psychologistID string, id int64) error {
	f.log.add("access.delete %d", id)
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.rows[:0]
	for _, r := range f.rows {
		if r.ID == id && r.PsychologistID == psychologistID {
			continue
		}
		kept = append(kept, r)
	}
	f.rows = kept
	return nil
}

func (f *fakeAccesses) RestoreAccess(ctx context.Context, a *models.FamilyAccess) error {
	f.log.add("access.restore %d", a.ID)
	if f.restoreErr != nil {
		return f.restoreErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.ID == a.ID {
			return nil
		}
	}
	f.rows = append(f.rows, *a)
	return nil
}

func (f *fakeAccesses) CountForGuardian(ctx context.Context, userID string) (int, error) {
	f.log.add("access.count %s", userID)
	if f.countErr != nil {
		return 0, f.countErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.rows {
		if r.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (f *fakeAccesses) ListByPatient(ctx context.Context, psychologistID string, patientID int64) ([]models.FamilyAccess, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.FamilyAccess
	for _, r := range f.rows {
		if r.PatientID == patientID && r.PsychologistID == psychologistID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeAccesses) ListForGuardian(ctx context.Context, userID string) ([]models.GuardianPatient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.GuardianPatient
	for _, r := range f.rows {
		if r.UserID != userID {
			continue
		}
		name := ""
		if f.patients != nil {
			if p, ok := f.patients.patients[r.PatientID]; ok {
				name = p.Name
			}
		}
		out = append(out, models.GuardianPatient{Access: r, PatientName: name})
	}
	return out, nil
}

func (f *fakeAccesses) CompletePasswordChange(ctx context.Context, userID string, id int64, now time.Time) (bool, error) {
	f.log.add("access.complete_password_change %d", id)
	f.mu.Lock()
	defer f.mu.Unlock()
	found := false
	for i := range f.rows {
		r := &f.rows[i]
		if r.UserID != userID {
			continue
		}
		if r.ID == id || r.MustChangePassword {
			r.MustChangePassword = false
		}
		if r.ID == id {
			stamp := now
			r.LastAccessAt = &stamp
			found = true
		}
	}
	return found, nil
}

func (f *fakeAccesses) TouchLastAccess(ctx context.Context, userID string, id int64, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows {
		if f.rows[i].ID == id && f.rows[i].UserID == userID {
			stamp := now
			f.rows[i].LastAccessAt = &stamp
		}
	}
	return nil
}

func (f *fakeAccesses) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakePatients struct {
	patients map[int64]models.Patient
	err      error
}

func newFakePatients(ps ...models.Patient) *fakePatients {
	f := &fakePatients{patients: map[int64]models.Patient{}}
	for _, p := range ps {
		f.patients[p.ID] = p
	}
	return f
}

func (f *fakePatients) GetPatient(ctx context.Context, psychologistID string, id int64) (*models.Patient, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.patients[id]
	if !ok || p.PsychologistID != psychologistID {
		return nil, nil
	}
	return &p, nil
}

type fakeInvitations struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeInvitations) SendFamilyInvitation(ctx context.Context, toEmail, familyName, patientName, temporaryPassword string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, toEmail+"|"+patientName)
	return f.err
}
