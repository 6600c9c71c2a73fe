package secrets

import (
	"context"
	"fmt"
	"log/slog"
)

// FederatedProfile is the part of an OAuth provider's profile we keep
type FederatedProfile struct {
	Provider    Provider
	Subject     string
	DisplayName string
}

// ResolveFederatedFunc maps a provider profile to a local identity
type ResolveFederatedFunc func(ctx context.Context, profile FederatedProfile) AuthResult

// NewFederatedResolver creates a ResolveFederatedFunc backed by the store's
// atomic find-or-create. onCreate, if not nil, is called once per newly
// created identity.
func NewFederatedResolver(store IdentityStore, onCreate func(provider Provider)) ResolveFederatedFunc {
	return func(ctx context.Context, profile FederatedProfile) AuthResult {
		if !profile.Provider.IsFederated() {
			return Failure(ReasonInvalidInput, &AuthError{
				Kind: KindValidation, Code: ErrCodeUnknownProvider,
				Message: "Unsupported login provider",
				Err:     fmt.Errorf("unknown provider %q", profile.Provider),
			})
		}
		if profile.Subject == "" {
			return Failure(ReasonProviderFailure, &AuthError{
				Kind: KindAuthentication, Code: ErrCodeInvalidCreds,
				Message: "Login failed, please try again",
				Err:     fmt.Errorf("%s profile has no subject id", profile.Provider),
			})
		}

		identity, created, err := store.FindOrCreateFederated(ctx, profile.Provider, profile.Subject, profile.DisplayName)
		if err != nil {
			return Failure(ReasonStoreUnavailable, storeFailure("find or create "+string(profile.Provider)+" identity", err))
		}
		if created {
			slog.Info("created federated identity", "provider", profile.Provider, "id", identity.ID)
			if onCreate != nil {
				onCreate(profile.Provider)
			}
		}
		return Success(identity)
	}
}
