package core

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"kansha-backend-go/internal/db"
	"kansha-backend-go/internal/identity"
	"kansha-backend-go/internal/models"
)

// Destination is a front-end route the auth gate sends a user to.
type Destination string

const (
	DestinationLanding     Destination = "/"
	DestinationOnboarding  Destination = "/newUserWelcome"
	DestinationStudent     Destination = "/studentDashboard"
	DestinationTeacher     Destination = "/teacherDashboard"
	DestinationAdmin       Destination = "/adminDashboard"
	DestinationUserProfile Destination = "/userProfile"
)

var roleDestinations = map[models.Role]Destination{
	models.RoleStudent:       DestinationStudent,
	models.RoleTeacher:       DestinationTeacher,
	models.RoleAdministrator: DestinationAdmin,
}

// DestinationForRole maps a stored role to its dashboard. Unset or unknown roles go to the profile page.
func DestinationForRole(role models.Role) Destination {
	if d, ok := roleDestinations[models.ParseRole(string(role))]; ok {
		return d
	}
	return DestinationUserProfile
}

// GateState is one resolution of the auth gate. Err is set when the profile could not be read;
// Destination is empty in that case.
type GateState struct {
	Destination Destination
	Role        models.Role
	Err         error
}

// AuthGate resolves identities to destinations and follows identity changes.
type AuthGate struct {
	users    db.UserRepository
	hub      *identity.Hub
	verifier identity.Verifier
	logger   *zap.Logger
}

func NewAuthGate(users db.UserRepository, hub *identity.Hub, verifier identity.Verifier, logger *zap.Logger) *AuthGate {
	return &AuthGate{users: users, hub: hub, verifier: verifier, logger: logger}
}

// Resolve computes the destination for id. A nil id is a signed-out visitor.
// Read failures are not retried.
func (g *AuthGate) Resolve(ctx context.Context, id *identity.Identity) GateState {
	if id == nil {
		return GateState{Destination: DestinationLanding}
	}

	user, err := g.users.GetByID(ctx, id.UID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return GateState{Destination: DestinationOnboarding}
		}
		g.logger.Error("Auth gate failed to read user profile", zap.String("userID", id.UID), zap.Error(err))
		return GateState{Err: err}
	}

	role := models.ParseRole(string(user.Role))
	return GateState{Destination: DestinationForRole(role), Role: role}
}

// Watch emits the resolution for initial and then one for every identity change published
// for the same user. The subscription is released and the channel closed when ctx ends.
func (g *AuthGate) Watch(ctx context.Context, initial *identity.Identity) <-chan GateState {
	out := make(chan GateState, 1)
	if initial == nil {
		out <- g.Resolve(ctx, nil)
		close(out)
		return out
	}

	// Only the latest pending change matters.
	changes := make(chan *identity.Identity, 1)
	sub := g.hub.Subscribe(initial.UID, func(id *identity.Identity) {
		for {
			select {
			case changes <- id:
				return
			default:
			}
			select {
			case <-changes:
			default:
			}
		}
	})

	go func() {
		defer close(out)
		defer sub.Unsubscribe()

		state := g.Resolve(ctx, initial)
		for {
			select {
			case out <- state:
			case <-ctx.Done():
				return
			}
			select {
			case id := <-changes:
				state = g.Resolve(ctx, id)
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Notify publishes an identity change for uid. A nil id signs the user out everywhere.
func (g *AuthGate) Notify(uid string, id *identity.Identity) {
	g.hub.Publish(uid, id)
}

// SignOut revokes the user's refresh tokens and tells every watcher the user is signed out.
func (g *AuthGate) SignOut(ctx context.Context, uid string) error {
	if err := g.verifier.RevokeRefreshTokens(ctx, uid); err != nil {
		return fmt.Errorf("sign out %s: %w", uid, err)
	}
	g.Notify(uid, nil)
	return nil
}
