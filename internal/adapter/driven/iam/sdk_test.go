package iam_test

import (
	"context"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	iamadapter "github.com/ericfisherdev/iamkeycheck/internal/adapter/driven/iam"
	"github.com/ericfisherdev/iamkeycheck/internal/domain/model"
)

const iamNamespace = "https://iam.amazonaws.com/doc/2010-05-08/"

// iamServer answers the IAM query API for testuser, who owns a single key.
// Requests signed with AKIADENIED are rejected as an invalid token.
type iamServer struct {
	mu      sync.Mutex
	signers []string
	actions []string
}

func (s *iamServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	auth := r.Header.Get("Authorization")
	s.mu.Lock()
	s.signers = append(s.signers, auth)
	s.actions = append(s.actions, r.PostForm.Get("Action"))
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/xml")

	if strings.Contains(auth, "Credential=AKIADENIED/") {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprintf(w, `<ErrorResponse xmlns="%s"><Error><Type>Sender</Type><Code>InvalidClientTokenId</Code>`+
			`<Message>The security token included in the request is invalid.</Message></Error>`+
			`<RequestId>req-denied</RequestId></ErrorResponse>`, iamNamespace)
		return
	}

	switch r.PostForm.Get("Action") {
	case "GetUser":
		fmt.Fprintf(w, `<GetUserResponse xmlns="%s"><GetUserResult><User>`+
			`<Path>/</Path><UserName>testuser</UserName><UserId>AIDAFAKEUSER</UserId>`+
			`<Arn>arn:aws:iam::123456789012:user/testuser</Arn><CreateDate>2020-01-01T00:00:00Z</CreateDate>`+
			`</User></GetUserResult><ResponseMetadata><RequestId>req-user</RequestId></ResponseMetadata></GetUserResponse>`,
			iamNamespace)
	case "ListAccessKeys":
		if r.PostForm.Get("UserName") != "testuser" {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintf(w, `<ErrorResponse xmlns="%s"><Error><Type>Sender</Type><Code>NoSuchEntity</Code>`+
				`<Message>unknown user</Message></Error><RequestId>req-missing</RequestId></ErrorResponse>`, iamNamespace)
			return
		}
		fmt.Fprintf(w, `<ListAccessKeysResponse xmlns="%s"><ListAccessKeysResult><AccessKeyMetadata><member>`+
			`<UserName>testuser</UserName><AccessKeyId>AKIAFAKEKEY123</AccessKeyId><Status>Active</Status>`+
			`<CreateDate>2026-01-02T03:04:05Z</CreateDate></member></AccessKeyMetadata>`+
			`<IsTruncated>false</IsTruncated></ListAccessKeysResult>`+
			`<ResponseMetadata><RequestId>req-keys</RequestId></ResponseMetadata></ListAccessKeysResponse>`,
			iamNamespace)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

// isolateAWSEnv keeps shared config files, profiles and instance metadata out
// of the SDK's default config resolution.
func isolateAWSEnv(t *testing.T) {
	t.Helper()
	t.Setenv("AWS_PROFILE", "")
	t.Setenv("AWS_CA_BUNDLE", "")
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "credentials"))
}

func newSDKFactory(t *testing.T, endpoint string) *iamadapter.Factory {
	t.Helper()
	factory, err := iamadapter.NewFactory(context.Background(), iamadapter.Options{
		Region:      "us-east-1",
		Endpoint:    endpoint,
		CallTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	return factory
}

func TestNewFactory_RoundTripsIAMQueryAPI(t *testing.T) {
	isolateAWSEnv(t)
	srv := &iamServer{}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client, err := newSDKFactory(t, ts.URL).ForCredential(model.CredentialRecord{KeyID: "AKIAFAKE", Secret: "abc123fakekey"})
	require.NoError(t, err)

	owner, err := client.ResolveOwner(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "testuser", owner.Username)

	creds, err := client.ListManagedCredentials(context.Background(), owner.Username)
	require.NoError(t, err)
	assert.Equal(t, []model.ManagedCredential{
		{ID: "AKIAFAKEKEY123", CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
	}, creds)

	assert.Equal(t, []string{"GetUser", "ListAccessKeys"}, srv.actions)
	for _, auth := range srv.signers {
		assert.Contains(t, auth, "Credential=AKIAFAKE/")
	}
}

func TestNewFactory_APIErrorCodeFromWire(t *testing.T) {
	isolateAWSEnv(t)
	ts := httptest.NewServer(&iamServer{})
	defer ts.Close()

	client, err := newSDKFactory(t, ts.URL).ForCredential(model.CredentialRecord{KeyID: "AKIADENIED", Secret: "s"})
	require.NoError(t, err)

	_, err = client.ResolveOwner(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "InvalidClientTokenId")
}

func TestNewFactory_HonoursCABundle(t *testing.T) {
	isolateAWSEnv(t)
	srv := &iamServer{}
	ts := httptest.NewTLSServer(srv)
	defer ts.Close()

	bundle := filepath.Join(t.TempDir(), "ca.pem")
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: ts.Certificate().Raw})
	require.NoError(t, os.WriteFile(bundle, pemBytes, 0o600))
	t.Setenv("AWS_CA_BUNDLE", bundle)

	client, err := newSDKFactory(t, ts.URL).ForCredential(model.CredentialRecord{KeyID: "AKIAFAKE", Secret: "abc123fakekey"})
	require.NoError(t, err)

	owner, err := client.ResolveOwner(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "testuser", owner.Username)
}
