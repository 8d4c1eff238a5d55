package service

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"abapractice/internal/models"
	"abapractice/internal/validation"
)

const practitioner = "psy-1"

type familyFixture struct {
	log         *callLog
	identities  *fakeIdentities
	profiles    *fakeProfiles
	accesses    *fakeAccesses
	patients    *fakePatients
	invitations *fakeInvitations
	svc         *FamilyAccessService
}

func newFamilyFixture(t *testing.T) *familyFixture {
	t.Helper()
	log := &callLog{}
	patients := newFakePatients(
		models.Patient{ID: 1, PsychologistID: practitioner, Name: "Lucas", GuardianName: "Ana Souza"},
		models.Patient{ID: 2, PsychologistID: practitioner, Name: "Marina"},
		models.Patient{ID: 3, PsychologistID: "psy-2", Name: "Pedro"},
	)
	f := &familyFixture{
		log:         log,
		identities:  newFakeIdentities(log),
		profiles:    newFakeProfiles(log),
		accesses:    newFakeAccesses(log, patients),
		patients:    patients,
		invitations: &fakeInvitations{},
	}
	f.svc = NewFamilyAccessService(f.identities, f.profiles, f.accesses, f.patients, f.invitations, time.Second, nil)
	f.svc.now = func() time.Time { return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC) }
	return f
}

func validParams() CreateAccessParams {
	return CreateAccessParams{
		PatientID:      1,
		FamilyName:     "Ana Souza",
		Email:          "ana@example.com",
		Password:       "secret1",
		PsychologistID: practitioner,
	}
}

func TestCreateAccessSuccess(t *testing.T) {
	f := newFamilyFixture(t)

	created, err := f.svc.CreateAccess(context.Background(), validParams())
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", created.Email)
	assert.NotEmpty(t, created.UserID)

	rows, err := f.svc.ListAccesses(context.Background(), practitioner, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, created.AccessID, rows[0].ID)
	assert.True(t, rows[0].MustChangePassword)
	assert.Equal(t, models.AccessLevelView, rows[0].AccessLevel)
	assert.Equal(t, models.AccessPendingFirstLogin, rows[0].State())

	assert.True(t, f.profiles.has(created.UserID))
	assert.Equal(t, models.RoleFamily, f.profiles.profiles[created.UserID].Role)
	assert.Equal(t, []string{"ana@example.com|Lucas"}, f.invitations.sent)
}

func TestCreateAccessValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateAccessParams)
		field  string
	}{
		{"missing patient", func(p *CreateAccessParams) { p.PatientID = 0 }, "patient_id"},
		{"missing practitioner", func(p *CreateAccessParams) { p.PsychologistID = " " }, "psychologist_id"},
		{"missing email", func(p *CreateAccessParams) { p.Email = "" }, "email"},
		{"bad email", func(p *CreateAccessParams) { p.Email = "not-an-email" }, "email"},
		{"missing password", func(p *CreateAccessParams) { p.Password = "" }, "password"},
		{"short password", func(p *CreateAccessParams) { p.Password = "12345" }, "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFamilyFixture(t)
			p := validParams()
			tt.mutate(&p)

			_, err := f.svc.CreateAccess(context.Background(), p)
			var verr validation.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Empty(t, f.log.all(), "no collaborator calls expected")
		})
	}
}

func TestCreateAccessPatientOutsideScope(t *testing.T) {
	f := newFamilyFixture(t)
	p := validParams()
	p.PatientID = 3

	_, err := f.svc.CreateAccess(context.Background(), p)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "patient", nf.Resource)
	assert.Zero(t, f.identities.count())
}

func TestCreateAccessDuplicateEmail(t *testing.T) {
	f := newFamilyFixture(t)

	first, err := f.svc.CreateAccess(context.Background(), validParams())
	require.NoError(t, err)

	second := validParams()
	second.PatientID = 2
	_, err = f.svc.CreateAccess(context.Background(), second)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)

	assert.Equal(t, 1, f.identities.count())
	assert.Len(t, f.profiles.profiles, 1)
	assert.Equal(t, 1, f.accesses.count())
	assert.True(t, f.profiles.has(first.UserID))
}

func TestCreateAccessProfileFailureDeletesIdentity(t *testing.T) {
	f := newFamilyFixture(t)
	f.profiles.createErr = errors.New("insert failed")

	_, err := f.svc.CreateAccess(context.Background(), validParams())
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "create_profile", perr.Op)

	assert.Zero(t, f.identities.count())
	assert.Zero(t, f.accesses.count())
	assert.Empty(t, f.invitations.sent)
}

func TestCreateAccessRowFailureCompensatesInOrder(t *testing.T) {
	f := newFamilyFixture(t)
	f.accesses.createErr = errors.New("insert failed")

	_, err := f.svc.CreateAccess(context.Background(), validParams())
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "create_access", perr.Op)

	assert.Equal(t, []string{
		"identity.create ana@example.com",
		"profile.create guardian-1",
		"access.create guardian-1/1",
		"profile.delete guardian-1",
		"identity.delete guardian-1",
	}, f.log.all())
	assert.Zero(t, f.identities.count())
	assert.Empty(t, f.profiles.profiles)
}

func TestCreateAccessCompensatesAfterCallerCancels(t *testing.T) {
	f := newFamilyFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.accesses.createErr = errors.New("insert failed")
	f.accesses.onCreate = cancel

	_, err := f.svc.CreateAccess(ctx, validParams())
	require.Error(t, err)
	assert.Zero(t, f.identities.count())
	assert.Empty(t, f.profiles.profiles)
}

func TestCreateAccessTimesOutSlowIdentityStore(t *testing.T) {
	f := newFamilyFixture(t)
	f.identities.blockCreate = true
	f.svc.callTimeout = 20 * time.Millisecond

	_, err := f.svc.CreateAccess(context.Background(), validParams())
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCreateAccessInvitationFailureDoesNotFail(t *testing.T) {
	f := newFamilyFixture(t)
	f.invitations.err = errors.New("ses down")

	created, err := f.svc.CreateAccess(context.Background(), validParams())
	require.NoError(t, err)
	assert.NotZero(t, created.AccessID)
	assert.Equal(t, 1, f.accesses.count())
}

func TestRevokeAccessMultiPatientGuardian(t *testing.T) {
	f := newFamilyFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateAccess(ctx, validParams())
	require.NoError(t, err)
	second, err := f.svc.ExtendAccess(ctx, practitioner, first.AccessID, 2)
	require.NoError(t, err)
	assert.Equal(t, first.UserID, second.UserID)

	require.NoError(t, f.svc.RevokeAccess(ctx, practitioner, first.AccessID))
	assert.Equal(t, 1, f.identities.count(), "identity kept while another grant remains")
	assert.True(t, f.profiles.has(first.UserID))

	require.NoError(t, f.svc.RevokeAccess(ctx, practitioner, second.AccessID))
	assert.Zero(t, f.identities.count())
	assert.False(t, f.profiles.has(first.UserID))
	assert.Zero(t, f.accesses.count())
}

func TestRevokeAccessDeletesProfileBeforeIdentity(t *testing.T) {
	f := newFamilyFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateAccess(ctx, validParams())
	require.NoError(t, err)
	f.log.calls = nil

	require.NoError(t, f.svc.RevokeAccess(ctx, practitioner, created.AccessID))
	calls := f.log.all()
	require.Len(t, calls, 5)
	assert.Equal(t, "profile.delete "+created.UserID, calls[3])
	assert.Equal(t, "identity.delete "+created.UserID, calls[4])
}

func TestRevokeAccessAbsentIsSuccess(t *testing.T) {
	f := newFamilyFixture(t)
	require.NoError(t, f.svc.RevokeAccess(context.Background(), practitioner, 99))
}

func TestRevokeAccessScopedToPractitioner(t *testing.T) {
	f := newFamilyFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateAccess(ctx, validParams())
	require.NoError(t, err)

	require.NoError(t, f.svc.RevokeAccess(ctx, "psy-2", created.AccessID))
	assert.Equal(t, 1, f.accesses.count())
	assert.Equal(t, 1, f.identities.count())
}

func TestRevokeAccessCountFailureCanBeRetried(t *testing.T) {
	f := newFamilyFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateAccess(ctx, validParams())
	require.NoError(t, err)
	f.accesses.countErr = errors.New("count failed")

	err = f.svc.RevokeAccess(ctx, practitioner, created.AccessID)
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "count_remaining", perr.Op)
	assert.Equal(t, 1, f.accesses.count(), "grant row restored")
	assert.Equal(t, 1, f.identities.count())

	f.accesses.countErr = nil
	require.NoError(t, f.svc.RevokeAccess(ctx, practitioner, created.AccessID))
	assert.Zero(t, f.accesses.count())
	assert.Zero(t, f.identities.count())
	assert.False(t, f.profiles.has(created.UserID))
}

func TestRevokeAccessIdentityFailureCanBeRetried(t *testing.T) {
	f := newFamilyFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateAccess(ctx, validParams())
	require.NoError(t, err)
	f.identities.deleteErr = errors.New("identity store down")
	f.log.calls = nil

	err = f.svc.RevokeAccess(ctx, practitioner, created.AccessID)
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "delete_identity", perr.Op)
	assert.Equal(t, []string{
		"access.get " + itoa(created.AccessID),
		"access.delete " + itoa(created.AccessID),
		"access.count " + created.UserID,
		"profile.delete " + created.UserID,
		"identity.delete " + created.UserID,
		"profile.create " + created.UserID,
		"access.restore " + itoa(created.AccessID),
	}, f.log.all())

	restored := f.accesses.find(func(r models.FamilyAccess) bool { return r.ID == created.AccessID })
	require.NotNil(t, restored)
	assert.True(t, restored.MustChangePassword)
	assert.True(t, f.profiles.has(created.UserID))

	f.identities.deleteErr = nil
	require.NoError(t, f.svc.RevokeAccess(ctx, practitioner, created.AccessID))
	assert.Zero(t, f.accesses.count())
	assert.Zero(t, f.identities.count())
	assert.False(t, f.profiles.has(created.UserID))
}

func TestExtendAccessDuplicate(t *testing.T) {
	f := newFamilyFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateAccess(ctx, validParams())
	require.NoError(t, err)

	_, err = f.svc.ExtendAccess(ctx, practitioner, created.AccessID, 1)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)

	_, err = f.svc.ExtendAccess(ctx, practitioner, created.AccessID, 3)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestChangeOwnPasswordValidation(t *testing.T) {
	tests := []struct {
		name     string
		password string
		confirm  string
		field    string
	}{
		{"too short", "abc", "abc", "password"},
		{"mismatch", "secret1", "secret2", "confirm_password"},
		{"empty", "", "", "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFamilyFixture(t)
			err := f.svc.ChangeOwnPassword(context.Background(), "guardian-1", 1, tt.password, tt.confirm)
			var verr validation.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Empty(t, f.log.all())
		})
	}
}

func TestChangeOwnPasswordActivatesAccess(t *testing.T) {
	f := newFamilyFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateAccess(ctx, validParams())
	require.NoError(t, err)
	second, err := f.svc.ExtendAccess(ctx, practitioner, created.AccessID, 2)
	require.NoError(t, err)

	require.NoError(t, f.svc.ChangeOwnPassword(ctx, created.UserID, created.AccessID, "newpass", "newpass"))
	assert.Equal(t, "newpass", f.identities.passwords[created.UserID])

	for _, id := range []int64{created.AccessID, second.AccessID} {
		row := f.accesses.find(func(r models.FamilyAccess) bool { return r.ID == id })
		require.NotNil(t, row)
		assert.False(t, row.MustChangePassword)
		assert.Equal(t, models.AccessActive, row.State())
	}

	changed := f.accesses.find(func(r models.FamilyAccess) bool { return r.ID == created.AccessID })
	require.NotNil(t, changed.LastAccessAt)
	other := f.accesses.find(func(r models.FamilyAccess) bool { return r.ID == second.AccessID })
	assert.Nil(t, other.LastAccessAt, "only the grant being opened records a visit")
}

func TestChangeOwnPasswordIdentityFailureLeavesRow(t *testing.T) {
	f := newFamilyFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateAccess(ctx, validParams())
	require.NoError(t, err)
	f.identities.updateErr = errors.New("identity store down")

	err = f.svc.ChangeOwnPassword(ctx, created.UserID, created.AccessID, "newpass", "newpass")
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "update_password", perr.Op)

	row := f.accesses.find(func(r models.FamilyAccess) bool { return r.ID == created.AccessID })
	assert.True(t, row.MustChangePassword)
	assert.Nil(t, row.LastAccessAt)
}

func TestChangeOwnPasswordForeignAccess(t *testing.T) {
	f := newFamilyFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateAccess(ctx, validParams())
	require.NoError(t, err)

	err = f.svc.ChangeOwnPassword(ctx, "someone-else", created.AccessID, "newpass", "newpass")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	_, changed := f.identities.passwords["someone-else"]
	assert.False(t, changed)
}

func TestListAccessesOrderAndValidation(t *testing.T) {
	f := newFamilyFixture(t)
	ctx := context.Background()

	_, err := f.svc.ListAccesses(ctx, practitioner, 0)
	var verr validation.ValidationError
	require.ErrorAs(t, err, &verr)

	a, err := f.svc.CreateAccess(ctx, validParams())
	require.NoError(t, err)
	p := validParams()
	p.Email = "joao@example.com"
	p.FamilyName = "João"
	b, err := f.svc.CreateAccess(ctx, p)
	require.NoError(t, err)

	rows, err := f.svc.ListAccesses(ctx, practitioner, 1)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, b.AccessID, rows[0].ID)
	assert.Equal(t, a.AccessID, rows[1].ID)
}

func TestGuardianAccessesAndResolve(t *testing.T) {
	f := newFamilyFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateAccess(ctx, validParams())
	require.NoError(t, err)

	list, err := f.svc.GuardianAccesses(ctx, created.UserID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Lucas", list[0].PatientName)

	access, err := f.svc.ResolveGuardianAccess(ctx, created.UserID, 1)
	require.NoError(t, err)
	assert.Equal(t, created.AccessID, access.ID)

	_, err = f.svc.ResolveGuardianAccess(ctx, created.UserID, 2)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
