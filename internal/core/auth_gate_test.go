package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kansha-backend-go/internal/identity"
	"kansha-backend-go/internal/models"
)

func newTestGate(users *fakeUserRepo) (*AuthGate, *identity.Hub, *fakeVerifier) {
	hub := identity.NewHub()
	verifier := &fakeVerifier{}
	return NewAuthGate(users, hub, verifier, zap.NewNop()), hub, verifier
}

func TestDestinationForRole(t *testing.T) {
	tests := []struct {
		role models.Role
		want Destination
	}{
		{models.RoleStudent, DestinationStudent},
		{models.RoleTeacher, DestinationTeacher},
		{models.RoleAdministrator, DestinationAdmin},
		{models.Role("Teacher"), DestinationTeacher},
		{models.RoleUnset, DestinationUserProfile},
		{models.Role("janitor"), DestinationUserProfile},
	}
	for _, tt := range tests {
		t.Run(tt.role.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, DestinationForRole(tt.role))
		})
	}
}

func TestResolve(t *testing.T) {
	users := newFakeUserRepo(
		&models.User{ID: "student", Role: models.RoleStudent},
		&models.User{ID: "norole"},
	)
	gate, _, _ := newTestGate(users)
	ctx := context.Background()

	assert.Equal(t, DestinationLanding, gate.Resolve(ctx, nil).Destination)
	assert.Equal(t, DestinationOnboarding, gate.Resolve(ctx, &identity.Identity{UID: "new"}).Destination)
	assert.Equal(t, DestinationUserProfile, gate.Resolve(ctx, &identity.Identity{UID: "norole"}).Destination)

	state := gate.Resolve(ctx, &identity.Identity{UID: "student"})
	assert.Equal(t, DestinationStudent, state.Destination)
	assert.Equal(t, models.RoleStudent, state.Role)
	assert.NoError(t, state.Err)
}

func TestResolveReadFailure(t *testing.T) {
	users := newFakeUserRepo()
	users.getErr = errors.New("permission denied")
	gate, _, _ := newTestGate(users)

	state := gate.Resolve(context.Background(), &identity.Identity{UID: "u1"})
	assert.Error(t, state.Err)
	assert.Empty(t, state.Destination)
}

func receive(t *testing.T, ch <-chan GateState) GateState {
	t.Helper()
	select {
	case s, ok := <-ch:
		require.True(t, ok, "channel closed")
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no gate state received")
		return GateState{}
	}
}

func TestWatchFollowsRoleChangesAndSignOut(t *testing.T) {
	users := newFakeUserRepo()
	gate, hub, verifier := newTestGate(users)
	svc := NewUserService(users, gate, zap.NewNop())
	id := &identity.Identity{UID: "u1", Email: "u1@example.com"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	states := gate.Watch(ctx, id)

	assert.Equal(t, DestinationOnboarding, receive(t, states).Destination)

	_, dest, err := svc.SelectRole(ctx, id, "teacher")
	require.NoError(t, err)
	assert.Equal(t, DestinationTeacher, dest)
	assert.Equal(t, DestinationTeacher, receive(t, states).Destination)

	require.NoError(t, gate.SignOut(ctx, "u1"))
	assert.Equal(t, DestinationLanding, receive(t, states).Destination)
	assert.Equal(t, []string{"u1"}, verifier.revoked)

	cancel()
	require.Eventually(t, func() bool { return hub.Listeners("u1") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatchSignedOutEmitsOnce(t *testing.T) {
	gate, hub, _ := newTestGate(newFakeUserRepo())
	states := gate.Watch(context.Background(), nil)

	assert.Equal(t, DestinationLanding, receive(t, states).Destination)
	_, ok := <-states
	assert.False(t, ok)
	assert.Zero(t, hub.Listeners(""))
}
