package driven

import (
	"context"

	"github.com/ericfisherdev/iamkeycheck/internal/domain/model"
)

// CredentialSource defines the driven port that supplies the credential pairs
// to audit. Implementations absorb per-file and per-row problems; a returned
// error means the source as a whole could not be consulted.
type CredentialSource interface {
	LoadAll(ctx context.Context) ([]model.CredentialRecord, error)
}
