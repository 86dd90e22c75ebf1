// Package iam implements the identity client ports using the AWS SDK for Go v2.
package iam

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awsiam "github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/smithy-go"

	"github.com/ericfisherdev/iamkeycheck/internal/domain/model"
	"github.com/ericfisherdev/iamkeycheck/internal/domain/port/driven"
)

var (
	// ErrMalformedResponse is returned when IAM answers without a field the
	// audit depends on.
	ErrMalformedResponse = errors.New("malformed IAM response")
	// ErrNoAuthority is returned when neither the record nor the factory
	// defaults provide an access key pair.
	ErrNoAuthority = errors.New("no AWS credentials available for request")
)

// Compile-time interface satisfaction checks.
var (
	_ driven.IdentityClientFactory = (*Factory)(nil)
	_ driven.IdentityClient        = (*Client)(nil)
)

// API is the subset of the IAM service client used here.
type API interface {
	GetUser(ctx context.Context, in *awsiam.GetUserInput, optFns ...func(*awsiam.Options)) (*awsiam.GetUserOutput, error)
	awsiam.ListAccessKeysAPIClient
}

// Options configures a Factory.
type Options struct {
	Region string
	// Endpoint overrides the IAM endpoint, e.g. a LocalStack URL.
	Endpoint string
	// CallTimeout bounds every HTTP round trip to IAM.
	CallTimeout time.Duration

	DefaultKeyID  string
	DefaultSecret string
}

// Factory builds one IAM client per credential pair.
type Factory struct {
	newAPI        func(keyID, secret string) API
	defaultKeyID  string
	defaultSecret string
}

// NewFactory loads a base AWS configuration and returns a Factory whose
// clients share it, each with its own static credentials. Retries are
// disabled: a failed call fails the record. AWS_CA_BUNDLE is only applied
// to the SDK's buildable client, so no plain http.Client is used.
func NewFactory(ctx context.Context, opts Options) (*Factory, error) {
	httpClient := awshttp.NewBuildableClient().WithTimeout(opts.CallTimeout)

	base, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithHTTPClient(httpClient),
		awsconfig.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	newAPI := func(keyID, secret string) API {
		cfg := base.Copy()
		cfg.Credentials = aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(keyID, secret, ""))
		return awsiam.NewFromConfig(cfg, func(o *awsiam.Options) {
			if opts.Endpoint != "" {
				o.BaseEndpoint = aws.String(opts.Endpoint)
			}
		})
	}

	return &Factory{
		newAPI:        newAPI,
		defaultKeyID:  opts.DefaultKeyID,
		defaultSecret: opts.DefaultSecret,
	}, nil
}

// NewFactoryWithAPI creates a Factory over a caller-supplied API constructor.
// This constructor is intended for testing.
func NewFactoryWithAPI(newAPI func(keyID, secret string) API, defaultKeyID, defaultSecret string) *Factory {
	return &Factory{
		newAPI:        newAPI,
		defaultKeyID:  defaultKeyID,
		defaultSecret: defaultSecret,
	}
}

// ForCredential returns a client authenticated as rec. A record without a
// pair of its own falls back to the factory's default authority.
func (f *Factory) ForCredential(rec model.CredentialRecord) (driven.IdentityClient, error) {
	keyID, secret := rec.KeyID, rec.Secret
	if keyID == "" || secret == "" {
		keyID, secret = f.defaultKeyID, f.defaultSecret
	}
	if keyID == "" || secret == "" {
		return nil, ErrNoAuthority
	}
	return &Client{api: f.newAPI(keyID, secret)}, nil
}

// Client is an IdentityClient bound to a single access key pair.
type Client struct {
	api API
}

// ResolveOwner calls GetUser without a user name, which IAM answers with the
// user that owns the signing key.
func (c *Client) ResolveOwner(ctx context.Context) (model.OwnerIdentity, error) {
	out, err := c.api.GetUser(ctx, &awsiam.GetUserInput{})
	if err != nil {
		return model.OwnerIdentity{}, wrapAPIError("get user", err)
	}

	if out == nil || out.User == nil || aws.ToString(out.User.UserName) == "" {
		return model.OwnerIdentity{}, fmt.Errorf("get user: %w: missing user name", ErrMalformedResponse)
	}

	return model.OwnerIdentity{Username: aws.ToString(out.User.UserName)}, nil
}

// ListManagedCredentials pages through ListAccessKeys for username and maps
// each entry to a ManagedCredential with a UTC creation time.
func (c *Client) ListManagedCredentials(ctx context.Context, username string) ([]model.ManagedCredential, error) {
	paginator := awsiam.NewListAccessKeysPaginator(c.api, &awsiam.ListAccessKeysInput{
		UserName: aws.String(username),
	})

	var creds []model.ManagedCredential
	for page := 1; paginator.HasMorePages(); page++ {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, wrapAPIError(fmt.Sprintf("list access keys for %s (page %d)", username, page), err)
		}

		for _, meta := range out.AccessKeyMetadata {
			id := aws.ToString(meta.AccessKeyId)
			if id == "" || meta.CreateDate == nil {
				return nil, fmt.Errorf("list access keys for %s: %w: access key without id or creation date", username, ErrMalformedResponse)
			}
			creds = append(creds, model.ManagedCredential{
				ID:        id,
				CreatedAt: meta.CreateDate.UTC(),
			})
		}
	}

	if creds == nil {
		creds = []model.ManagedCredential{}
	}

	return creds, nil
}

// wrapAPIError annotates err with the IAM error code when one is available.
func wrapAPIError(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s (%s): %w", op, apiErr.ErrorCode(), err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
