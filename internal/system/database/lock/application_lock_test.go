package lock

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errors2 "github.com/wso2/identity-contact-resolution-service/internal/system/errors"
	"github.com/wso2/identity-contact-resolution-service/internal/system/log"
)

func TestMain(m *testing.M) {
	_ = log.Init("ERROR")
	os.Exit(m.Run())
}

func TestPostgresLock_ReleaseWithoutAcquire(t *testing.T) {
	l := NewPostgresLock()

	// No session holds this key, so release must fail without touching the
	// database.
	err := l.Release("lock:contact:email:nobody@hillvalley.edu")

	require.Error(t, err)
	serverErr, ok := err.(*errors2.ServerError)
	require.True(t, ok)
	assert.Equal(t, errors2.LOCK_RELEASE.Code, serverErr.Code)
}

func TestProcessLock_MutualExclusion(t *testing.T) {
	l := NewProcessLock()

	acquired, err := l.Acquire("lock:contact:phone:42")
	require.NoError(t, err)
	assert.True(t, acquired)

	again, err := l.Acquire("lock:contact:phone:42")
	require.NoError(t, err)
	assert.False(t, again)

	require.NoError(t, l.Release("lock:contact:phone:42"))

	acquired, err = l.Acquire("lock:contact:phone:42")
	require.NoError(t, err)
	assert.True(t, acquired)
}
