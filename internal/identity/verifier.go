// Package identity verifies Firebase ID tokens and fans out identity changes to listeners.
package identity

import (
	"context"
	"errors"
	"fmt"

	"firebase.google.com/go/v4/auth"
)

// ErrInvalidToken is returned for tokens that fail verification.
var ErrInvalidToken = errors.New("invalid or expired authentication token")

// Identity is the signed-in principal extracted from an ID token.
type Identity struct {
	UID         string
	Email       string
	DisplayName string
	PhotoURL    string
}

// Verifier checks ID tokens and manages sessions at the identity provider.
type Verifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*Identity, error)
	RevokeRefreshTokens(ctx context.Context, uid string) error
}

// FirebaseVerifier implements Verifier with the Firebase Admin SDK.
type FirebaseVerifier struct {
	client *auth.Client
}

func NewFirebaseVerifier(client *auth.Client) *FirebaseVerifier {
	if client == nil {
		panic("Firebase Auth client is not initialized for FirebaseVerifier")
	}
	return &FirebaseVerifier{client: client}
}

func (v *FirebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (*Identity, error) {
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id := &Identity{UID: token.UID}
	// Firebase copies these standard claims into the token when the account has them.
	if email, ok := token.Claims["email"].(string); ok {
		id.Email = email
	}
	if name, ok := token.Claims["name"].(string); ok {
		id.DisplayName = name
	}
	if picture, ok := token.Claims["picture"].(string); ok {
		id.PhotoURL = picture
	}
	return id, nil
}

func (v *FirebaseVerifier) RevokeRefreshTokens(ctx context.Context, uid string) error {
	if err := v.client.RevokeRefreshTokens(ctx, uid); err != nil {
		return fmt.Errorf("revoke refresh tokens for %s: %w", uid, err)
	}
	return nil
}
