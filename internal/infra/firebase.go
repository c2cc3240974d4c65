// README: Firebase-backed bearer token verification.
package infra

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// AuthToken is the verified caller identity handed to the auth middleware:
// the Firebase UID plus the token's custom claims (display name, role).
type AuthToken struct {
	UID    string
	Claims map[string]interface{}
}

// TokenVerifier checks a raw bearer token and returns the caller identity.
// The HTTP layer depends on this interface, not on the Firebase SDK, so
// tests substitute a stub.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*AuthToken, error)
}

type firebaseVerifier struct {
	auth *auth.Client
}

// NewFirebaseVerifier builds the production TokenVerifier. projectID must
// match the Firebase project that issued the tokens. credentialsFile, when
// set, points at a service-account JSON; otherwise the SDK falls back to
// application-default credentials.
func NewFirebaseVerifier(ctx context.Context, projectID, credentialsFile string) (TokenVerifier, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("infra: firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("infra: firebase auth client: %w", err)
	}
	return &firebaseVerifier{auth: client}, nil
}

func (v *firebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (*AuthToken, error) {
	token, err := v.auth.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, err
	}
	return &AuthToken{UID: token.UID, Claims: token.Claims}, nil
}
