package driven

import (
	"context"

	"github.com/ericfisherdev/iamkeycheck/internal/domain/model"
)

// IdentityClient defines the driven port for the identity API, authenticated
// as a single credential pair.
type IdentityClient interface {
	// ResolveOwner returns the identity the client is authenticated as.
	ResolveOwner(ctx context.Context) (model.OwnerIdentity, error)

	// ListManagedCredentials returns every access key owned by username, in
	// the order the identity API reports them.
	ListManagedCredentials(ctx context.Context, username string) ([]model.ManagedCredential, error)
}

// IdentityClientFactory builds an IdentityClient whose bearer authority is the
// given record's key pair.
type IdentityClientFactory interface {
	ForCredential(rec model.CredentialRecord) (IdentityClient, error)
}
