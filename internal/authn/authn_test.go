package authn

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	v := NewVerifier("test-secret")
	id := uuid.New()

	token, err := v.Issue(id.String())
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	got, err := v.RecipientID(req)
	require.NoError(t, err)
	require.Equal(t, id, got)
}

func TestRecipientIDRejectsMissingHeader(t *testing.T) {
	v := NewVerifier("test-secret")
	req, _ := http.NewRequest(http.MethodGet, "/", nil)

	_, err := v.RecipientID(req)
	require.ErrorIs(t, err, ErrMissingHeader)
}

func TestRecipientIDRejectsWrongSecret(t *testing.T) {
	v := NewVerifier("test-secret")
	other := NewVerifier("other-secret")

	token, err := other.Issue(uuid.New().String())
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	_, err = v.RecipientID(req)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRecipientIDRejectsNonUUIDSubject(t *testing.T) {
	v := NewVerifier("test-secret")
	token, err := v.Issue("not-a-uuid")
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	_, err = v.RecipientID(req)
	require.ErrorIs(t, err, ErrInvalidToken)
}
