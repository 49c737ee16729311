package services

import (
	"errors"
	"sync"
	"testing"
	"time"

	"kindred-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInviteAcceptStartsSession(t *testing.T) {
	e := newTestEnv(t)
	e.addUser("alice", withPrompt("newborn will not sleep"))
	e.addUser("bob", withPrompt("sleep regression at four months"))

	inv, err := e.invites.Create(e.ctx, "alice", "bob", "")
	require.NoError(t, err)
	assert.Equal(t, "newborn will not sleep", inv.PromptText)
	assert.Equal(t, e.clock.Now().Add(2*time.Minute), inv.ExpiresAt)
	require.Len(t, e.pub.find(UserChannel("bob"), EventInviteReceived), 1)

	accepted, sess, err := e.invites.Accept(e.ctx, inv.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, models.InviteStatusAccepted, accepted.Status)
	assert.Equal(t, models.SessionTypeAnonymous, sess.Type)
	assert.True(t, sess.IsActive)
	require.NotNil(t, sess.PromptText)
	assert.Equal(t, "newborn will not sleep", *sess.PromptText)
	assert.NotEmpty(t, sess.DisplayNames["alice"])
	assert.NotEmpty(t, sess.DisplayNames["bob"])

	assert.False(t, e.user("alice").IsSeeking())
	assert.False(t, e.user("bob").IsSeeking())
	assert.Len(t, e.pub.find(UserChannel("alice"), EventInviteAccepted), 1)
	assert.Len(t, e.pub.sessionUpdates(UserChannel("alice"), SessionStarted), 1)
}

func TestInviteAcceptCancelsOtherPendingInvites(t *testing.T) {
	e := newTestEnv(t)
	for _, id := range []string{"alice", "bob", "carol", "dave"} {
		e.addUser(id)
	}

	chosen, err := e.invites.Create(e.ctx, "alice", "bob", "toddler tantrums")
	require.NoError(t, err)
	fromCarol, err := e.invites.Create(e.ctx, "carol", "bob", "toddler tantrums")
	require.NoError(t, err)
	toDave, err := e.invites.Create(e.ctx, "alice", "dave", "toddler tantrums")
	require.NoError(t, err)
	unrelated, err := e.invites.Create(e.ctx, "carol", "dave", "toddler tantrums")
	require.NoError(t, err)

	_, _, err = e.invites.Accept(e.ctx, chosen.ID, "bob")
	require.NoError(t, err)

	for _, id := range []string{fromCarol.ID, toDave.ID} {
		inv, err := e.invitesRepo.GetByID(e.ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.InviteStatusCancelled, inv.Status, id)
	}
	inv, err := e.invitesRepo.GetByID(e.ctx, unrelated.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InviteStatusPending, inv.Status)

	assert.Len(t, e.pub.find(UserChannel("carol"), EventInviteCancelled), 1)
	assert.Len(t, e.pub.find(UserChannel("dave"), EventInviteCancelled), 1)
}

func TestInviteConcurrentAcceptsHaveOneWinner(t *testing.T) {
	e := newTestEnv(t)
	e.addUser("dora")
	e.addUser("alice")
	e.addUser("bob")

	toAlice, err := e.invites.Create(e.ctx, "dora", "alice", "moving cities with a baby")
	require.NoError(t, err)
	toBob, err := e.invites.Create(e.ctx, "dora", "bob", "moving cities with a baby")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, tc := range []struct{ invite, actor string }{{toAlice.ID, "alice"}, {toBob.ID, "bob"}} {
		wg.Add(1)
		go func(i int, invite, actor string) {
			defer wg.Done()
			_, _, errs[i] = e.invites.Accept(e.ctx, invite, actor)
		}(i, tc.invite, tc.actor)
	}
	wg.Wait()

	var wins, losses int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, models.ErrAlreadyResolved), errors.Is(err, models.ErrConflict):
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, losses)

	sess, err := e.sessions.GetActive(e.ctx, "dora")
	require.NoError(t, err)
	assert.True(t, sess.HasParticipant("dora"))
}

func TestInviteExpiresLazily(t *testing.T) {
	e := newTestEnv(t)
	e.addUser("alice")
	e.addUser("bob")

	inv, err := e.invites.Create(e.ctx, "alice", "bob", "returning to work")
	require.NoError(t, err)

	e.clock.Advance(2 * time.Minute)

	views, err := e.invites.ListPending(e.ctx, "bob", models.DirectionIncoming)
	require.NoError(t, err)
	assert.Empty(t, views)

	_, _, err = e.invites.Accept(e.ctx, inv.ID, "bob")
	assert.ErrorIs(t, err, models.ErrExpired)

	stored, err := e.invitesRepo.GetByID(e.ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InviteStatusExpired, stored.Status)

	_, _, err = e.invites.Accept(e.ctx, inv.ID, "bob")
	assert.ErrorIs(t, err, models.ErrAlreadyResolved)
}

func TestInviteAcceptRetryReportsAlreadyResolved(t *testing.T) {
	e := newTestEnv(t)
	e.addUser("alice")
	e.addUser("bob")

	inv, err := e.invites.Create(e.ctx, "alice", "bob", "first week back at work")
	require.NoError(t, err)
	_, _, err = e.invites.Accept(e.ctx, inv.ID, "bob")
	require.NoError(t, err)

	// bob is now busy, but the invite's own state decides the answer
	_, _, err = e.invites.Accept(e.ctx, inv.ID, "bob")
	assert.ErrorIs(t, err, models.ErrAlreadyResolved)
}

func TestInviteAcceptByBusyReceiverStillExpires(t *testing.T) {
	e := newTestEnv(t)
	e.addUser("alice")
	e.addUser("bob")
	e.addUser("carol")

	e.startSession("alice", "bob")
	inv, err := e.invites.Create(e.ctx, "carol", "bob", "weaning advice")
	require.NoError(t, err)

	e.clock.Advance(3 * time.Minute)
	_, _, err = e.invites.Accept(e.ctx, inv.ID, "bob")
	assert.ErrorIs(t, err, models.ErrExpired)

	stored, err := e.invitesRepo.GetByID(e.ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InviteStatusExpired, stored.Status)
	require.NotNil(t, stored.ResolvedAt)
}

func TestInviteAcceptByPenalizedReceiverChecksInviteFirst(t *testing.T) {
	e := newTestEnv(t)
	e.addUser("alice")
	e.addUser("bob")

	inv, err := e.invites.Create(e.ctx, "alice", "bob", "colic")
	require.NoError(t, err)
	_, err = e.invites.Decline(e.ctx, inv.ID, "bob")
	require.NoError(t, err)
	_, err = e.penalties.Apply(e.ctx, "bob")
	require.NoError(t, err)

	_, _, err = e.invites.Accept(e.ctx, inv.ID, "bob")
	assert.ErrorIs(t, err, models.ErrAlreadyResolved)
}

func TestInviteRoles(t *testing.T) {
	e := newTestEnv(t)
	e.addUser("alice")
	e.addUser("bob")

	inv, err := e.invites.Create(e.ctx, "alice", "bob", "daycare choices")
	require.NoError(t, err)

	_, _, err = e.invites.Accept(e.ctx, inv.ID, "alice")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	_, err = e.invites.Decline(e.ctx, inv.ID, "alice")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	_, err = e.invites.Cancel(e.ctx, inv.ID, "bob")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	declined, err := e.invites.Decline(e.ctx, inv.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, models.InviteStatusDeclined, declined.Status)
	assert.Len(t, e.pub.find(UserChannel("alice"), EventInviteDeclined), 1)

	_, err = e.invites.Cancel(e.ctx, inv.ID, "alice")
	assert.ErrorIs(t, err, models.ErrAlreadyResolved)
}

func TestInviteCreateValidation(t *testing.T) {
	e := newTestEnv(t)
	e.addUser("alice")
	e.addUser("bob")
	e.addUser("penny", withPenaltyUntil(e.clock.Now().Add(time.Hour)))

	_, err := e.invites.Create(e.ctx, "alice", "alice", "hello")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	_, err = e.invites.Create(e.ctx, "alice", "bob", "   ")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	_, err = e.invites.Create(e.ctx, "alice", "ghost", "hello there")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = e.invites.Create(e.ctx, "penny", "bob", "hello there")
	var penalty *models.PenaltyError
	require.ErrorAs(t, err, &penalty)
	assert.Equal(t, e.clock.Now().Add(time.Hour), penalty.Until)
}

func TestInviteRequiresIdleParties(t *testing.T) {
	e := newTestEnv(t)
	e.addUser("alice")
	e.addUser("bob")
	e.addUser("carol")

	pending, err := e.invites.Create(e.ctx, "carol", "alice", "colic remedies")
	require.NoError(t, err)
	e.startSession("alice", "bob")

	_, err = e.invites.Create(e.ctx, "alice", "carol", "colic remedies")
	assert.ErrorIs(t, err, models.ErrConflict)

	// alice is already talking to bob
	_, _, err = e.invites.Accept(e.ctx, pending.ID, "alice")
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestInviteBetweenBlockedUsersIsSilent(t *testing.T) {
	e := newTestEnv(t)
	e.addUser("alice")
	e.addUser("bob")

	_, err := e.directory.Block(e.ctx, "bob", "alice")
	require.NoError(t, err)

	inv, err := e.invites.Create(e.ctx, "alice", "bob", "first steps")
	require.NoError(t, err)
	assert.Empty(t, e.pub.find(UserChannel("bob"), EventInviteReceived))

	views, err := e.invites.ListPending(e.ctx, "bob", models.DirectionIncoming)
	require.NoError(t, err)
	assert.Empty(t, views)

	_, _, err = e.invites.Accept(e.ctx, inv.ID, "bob")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestInviteListPendingShowsCounterpartPseudonym(t *testing.T) {
	e := newTestEnv(t)
	e.addUser("alice")
	e.addUser("bob")

	_, err := e.invites.Create(e.ctx, "alice", "bob", "weaning tips")
	require.NoError(t, err)

	incoming, err := e.invites.ListPending(e.ctx, "bob", models.DirectionIncoming)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.NotEmpty(t, incoming[0].Counterpart)

	outgoing, err := e.invites.ListPending(e.ctx, "alice", models.DirectionOutgoing)
	require.NoError(t, err)
	require.Len(t, outgoing, 1)
	assert.NotEmpty(t, outgoing[0].Counterpart)
}

func TestInviteSweeperExpiresStaleInvites(t *testing.T) {
	e := newTestEnv(t)
	e.addUser("alice")
	e.addUser("bob")
	e.addUser("carol")

	_, err := e.invites.Create(e.ctx, "alice", "bob", "baby led weaning")
	require.NoError(t, err)
	e.clock.Advance(90 * time.Second)
	fresh, err := e.invites.Create(e.ctx, "carol", "bob", "baby led weaning")
	require.NoError(t, err)
	e.clock.Advance(time.Minute)

	sweeper := NewInviteSweeper(e.invites, time.Minute)
	assert.Equal(t, int64(1), sweeper.SweepOnce(e.ctx))
	assert.Equal(t, int64(0), sweeper.SweepOnce(e.ctx))

	stored, err := e.invitesRepo.GetByID(e.ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InviteStatusPending, stored.Status)
}
