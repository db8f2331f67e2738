package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestAuthenticate(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.CreateUser("alice", "secret", "user"))
	require.NoError(t, db.CreateUser("root", "hunter2", "admin"))

	ok, isAdmin, err := db.Authenticate("alice", "secret")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, isAdmin)

	ok, isAdmin, err = db.Authenticate("root", "hunter2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, isAdmin)

	ok, _, err = db.Authenticate("alice", "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, _, err = db.Authenticate("nobody", "secret")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreateUserDuplicate(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.CreateUser("alice", "secret", "user"))
	err := db.CreateUser("alice", "other", "user")
	assert.ErrorIs(t, err, ErrUserExists)

	// Original credentials still work
	ok, _, err := db.Authenticate("alice", "secret")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPasswordsAreHashed(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.CreateUser("alice", "secret", "user"))
	user, err := db.FindUser("alice")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.NotEqual(t, "secret", user.PasswordHash)
}

func TestChannelLifecycle(t *testing.T) {
	db := openTestDB(t)

	exists, err := db.ChannelExists("general")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, db.InsertChannel("general"))

	exists, err = db.ChannelExists("general")
	require.NoError(t, err)
	assert.True(t, exists)

	assert.ErrorIs(t, db.InsertChannel("general"), ErrChannelExists)

	require.NoError(t, db.DeleteChannel("general"))

	exists, err = db.ChannelExists("general")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.ErrorIs(t, db.DeleteChannel("general"), ErrChannelNotFound)
}

func TestChannelNamesAreCaseSensitive(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.InsertChannel("General"))

	exists, err := db.ChannelExists("general")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestListChannelNames(t *testing.T) {
	db := openTestDB(t)

	names, err := db.ListChannelNames()
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, db.InsertChannel("general"))
	require.NoError(t, db.InsertChannel("tech"))

	names, err = db.ListChannelNames()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"general", "tech"}, names)
}

func TestMessageStorage(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.InsertChannel("general"))
	require.NoError(t, db.InsertChannel("tech"))

	require.NoError(t, db.InsertMessage("general", "alice", "alice: hello"))
	require.NoError(t, db.InsertMessage("general", "bob", "bob: hi"))
	require.NoError(t, db.InsertMessage("tech", "alice", "alice: anyone?"))

	count, err := db.CountChannelMessages("general")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, db.DeleteChannelMessages("general"))

	count, err = db.CountChannelMessages("general")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	count, err = db.CountChannelMessages("tech")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, db.DeleteAllMessages())

	count, err = db.CountChannelMessages("tech")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
