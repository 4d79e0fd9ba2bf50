package services

import (
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Liberatex/Rotation/internal/apperr"
	"github.com/Liberatex/Rotation/internal/models"
	"github.com/Liberatex/Rotation/internal/ws"
)

var codePattern = regexp.MustCompile(`^[A-Z]{3}[0-9]{3}$`)

func TestCreateSessionEnrollsOwner(t *testing.T) {
	db := newTestDB(t)
	fanout := &recordingFanout{}
	svc := NewSessionService(db, fanout)
	owner := createUser(t, db, "owner@example.com")

	session, err := svc.Create(owner.ID, CreateSessionInput{})
	require.NoError(t, err)

	assert.Regexp(t, codePattern, session.Code)
	assert.Equal(t, models.SessionStatusWaiting, session.Status)
	assert.Equal(t, owner.ID, session.OwnerID)
	require.Len(t, session.Participants, 1)
	assert.Equal(t, owner.ID, session.Participants[0].UserID)
	assert.Equal(t, 1, session.Participants[0].JoinOrder)
}

func TestSessionCodesAreUnique(t *testing.T) {
	db := newTestDB(t)
	svc := NewSessionService(db, &recordingFanout{})
	owner := createUser(t, db, "owner@example.com")

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		session, err := svc.Create(owner.ID, CreateSessionInput{})
		require.NoError(t, err)
		assert.Regexp(t, codePattern, session.Code)
		assert.False(t, seen[session.Code], "duplicate code %s", session.Code)
		seen[session.Code] = true
	}
}

func TestGetSessionRequiresMembership(t *testing.T) {
	db := newTestDB(t)
	svc := NewSessionService(db, &recordingFanout{})
	owner := createUser(t, db, "owner@example.com")
	outsider := createUser(t, db, "outsider@example.com")

	session, err := svc.Create(owner.ID, CreateSessionInput{})
	require.NoError(t, err)

	_, err = svc.Get(outsider.ID, session.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestJoinAssignsIncreasingJoinOrder(t *testing.T) {
	db := newTestDB(t)
	fanout := &recordingFanout{}
	svc := NewSessionService(db, fanout)
	owner := createUser(t, db, "owner@example.com")
	alice := createUser(t, db, "alice@example.com")
	bob := createUser(t, db, "bob@example.com")

	session, err := svc.Create(owner.ID, CreateSessionInput{})
	require.NoError(t, err)

	_, err = svc.Join(alice.ID, session.ID, session.Code)
	require.NoError(t, err)
	got, err := svc.Join(bob.ID, session.ID, session.Code)
	require.NoError(t, err)

	require.Len(t, got.Participants, 3)
	for i, p := range got.Participants {
		assert.Equal(t, i+1, p.JoinOrder)
	}
	assert.Equal(t, []string{ws.EventParticipantJoined, ws.EventParticipantJoined}, fanout.types())
}

func TestConcurrentJoinsGetDistinctJoinOrders(t *testing.T) {
	db := newTestDB(t)
	svc := NewSessionService(db, &recordingFanout{})
	owner := createUser(t, db, "owner@example.com")

	session, err := svc.Create(owner.ID, CreateSessionInput{})
	require.NoError(t, err)

	joiners := []*models.User{
		createUser(t, db, "a@example.com"),
		createUser(t, db, "b@example.com"),
		createUser(t, db, "c@example.com"),
	}

	var wg sync.WaitGroup
	errs := make([]error, len(joiners))
	release := make(chan struct{})
	for i, u := range joiners {
		wg.Add(1)
		go func(i int, userID uint) {
			defer wg.Done()
			<-release
			_, errs[i] = svc.Join(userID, session.ID, session.Code)
		}(i, u.ID)
	}
	close(release)
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	got, err := svc.Get(owner.ID, session.ID)
	require.NoError(t, err)
	require.Len(t, got.Participants, 4)
	seen := map[int]bool{}
	for i, p := range got.Participants {
		assert.Equal(t, i+1, p.JoinOrder)
		assert.False(t, seen[p.JoinOrder], "duplicate join order %d", p.JoinOrder)
		seen[p.JoinOrder] = true
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	fanout := &recordingFanout{}
	svc := NewSessionService(db, fanout)
	owner := createUser(t, db, "owner@example.com")
	alice := createUser(t, db, "alice@example.com")

	session, err := svc.Create(owner.ID, CreateSessionInput{})
	require.NoError(t, err)

	_, err = svc.Join(alice.ID, session.ID, session.Code)
	require.NoError(t, err)
	got, err := svc.Join(alice.ID, session.ID, session.Code)
	require.NoError(t, err)

	assert.Len(t, got.Participants, 2)
	assert.Len(t, fanout.types(), 1, "rejoin must not rebroadcast")
}

func TestJoinRejectsWrongCode(t *testing.T) {
	db := newTestDB(t)
	svc := NewSessionService(db, &recordingFanout{})
	owner := createUser(t, db, "owner@example.com")
	alice := createUser(t, db, "alice@example.com")

	session, err := svc.Create(owner.ID, CreateSessionInput{})
	require.NoError(t, err)

	_, err = svc.Join(alice.ID, session.ID, "ZZZ999")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestJoinByCode(t *testing.T) {
	db := newTestDB(t)
	svc := NewSessionService(db, &recordingFanout{})
	owner := createUser(t, db, "owner@example.com")
	alice := createUser(t, db, "alice@example.com")

	session, err := svc.Create(owner.ID, CreateSessionInput{})
	require.NoError(t, err)

	got, err := svc.JoinByCode(alice.ID, session.Code)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)

	_, err = svc.JoinByCode(alice.ID, "ZZZ999")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestJoinEnforcesMaxParticipants(t *testing.T) {
	db := newTestDB(t)
	svc := NewSessionService(db, &recordingFanout{})
	owner := createUser(t, db, "owner@example.com")
	alice := createUser(t, db, "alice@example.com")
	bob := createUser(t, db, "bob@example.com")

	session, err := svc.Create(owner.ID, CreateSessionInput{
		Settings: &models.SessionSettings{MaxParticipants: 2},
	})
	require.NoError(t, err)

	_, err = svc.Join(alice.ID, session.ID, session.Code)
	require.NoError(t, err)
	_, err = svc.Join(bob.ID, session.ID, session.Code)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestUpdateSessionOwnerOnly(t *testing.T) {
	db := newTestDB(t)
	svc := NewSessionService(db, &recordingFanout{})
	owner := createUser(t, db, "owner@example.com")
	alice := createUser(t, db, "alice@example.com")

	session, err := svc.Create(owner.ID, CreateSessionInput{})
	require.NoError(t, err)
	_, err = svc.Join(alice.ID, session.ID, session.Code)
	require.NoError(t, err)

	status := models.SessionStatusActive
	_, err = svc.Update(alice.ID, session.ID, UpdateSessionInput{Status: &status})
	assert.True(t, apperr.IsKind(err, apperr.KindNotAuthorized))

	got, err := svc.Update(owner.ID, session.ID, UpdateSessionInput{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusActive, got.Status)

	bad := "frozen"
	_, err = svc.Update(owner.ID, session.ID, UpdateSessionInput{Status: &bad})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestDeleteSessionBroadcastsAndCascades(t *testing.T) {
	db := newTestDB(t)
	fanout := &recordingFanout{}
	svc := NewSessionService(db, fanout)
	owner := createUser(t, db, "owner@example.com")
	alice := createUser(t, db, "alice@example.com")

	session, err := svc.Create(owner.ID, CreateSessionInput{})
	require.NoError(t, err)
	_, err = svc.Join(alice.ID, session.ID, session.Code)
	require.NoError(t, err)

	err = svc.Delete(alice.ID, session.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotAuthorized))

	require.NoError(t, svc.Delete(owner.ID, session.ID))
	assert.Contains(t, fanout.types(), ws.EventSessionEnded)

	_, err = svc.Get(owner.ID, session.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestLeaveSession(t *testing.T) {
	db := newTestDB(t)
	fanout := &recordingFanout{}
	svc := NewSessionService(db, fanout)
	owner := createUser(t, db, "owner@example.com")
	alice := createUser(t, db, "alice@example.com")

	session, err := svc.Create(owner.ID, CreateSessionInput{})
	require.NoError(t, err)
	_, err = svc.Join(alice.ID, session.ID, session.Code)
	require.NoError(t, err)

	err = svc.Leave(owner.ID, session.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidState))

	require.NoError(t, svc.Leave(alice.ID, session.ID))
	assert.Contains(t, fanout.types(), ws.EventParticipantLeft)

	_, err = svc.Get(alice.ID, session.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestOwnerManagesParticipants(t *testing.T) {
	db := newTestDB(t)
	svc := NewSessionService(db, &recordingFanout{})
	owner := createUser(t, db, "owner@example.com")
	alice := createUser(t, db, "alice@example.com")

	session, err := svc.Create(owner.ID, CreateSessionInput{})
	require.NoError(t, err)

	require.NoError(t, svc.AddParticipant(owner.ID, session.ID, alice.ID))

	parts, err := svc.ListParticipants(owner.ID, session.ID)
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.Equal(t, "alice@example.com", parts[1].DisplayName)

	err = svc.RemoveParticipant(owner.ID, session.ID, owner.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidState))

	require.NoError(t, svc.RemoveParticipant(owner.ID, session.ID, alice.ID))
	ok, err := svc.IsParticipant(alice.ID, session.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListMine(t *testing.T) {
	db := newTestDB(t)
	svc := NewSessionService(db, &recordingFanout{})
	owner := createUser(t, db, "owner@example.com")
	alice := createUser(t, db, "alice@example.com")

	first, err := svc.Create(owner.ID, CreateSessionInput{})
	require.NoError(t, err)
	second, err := svc.Create(alice.ID, CreateSessionInput{})
	require.NoError(t, err)
	_, err = svc.Join(owner.ID, second.ID, second.Code)
	require.NoError(t, err)

	mine, err := svc.ListMine(owner.ID)
	require.NoError(t, err)
	require.Len(t, mine, 2)

	theirs, err := svc.ListMine(alice.ID)
	require.NoError(t, err)
	require.Len(t, theirs, 1)
	assert.Equal(t, second.ID, theirs[0].ID)
	_ = first
}
