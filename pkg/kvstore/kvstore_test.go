package kvstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bucketName = []byte("widgets")

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestUpdateCommitsAndViewSeesIt(t *testing.T) {
	store := openTestStore(t)

	err := store.Update(func(tx *Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		return b.Put([]byte("key"), []byte("value"))
	})
	require.NoError(t, err)

	var got []byte
	err = store.View(func(tx *Tx) error {
		b := tx.Bucket(bucketName)
		require.NotNil(t, b, "expected bucket to exist after commit")
		got = append([]byte(nil), b.Get([]byte("key"))...)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "value", string(got))
}

func TestUpdateRollsBackOnError(t *testing.T) {
	store := openTestStore(t)

	failure := errFailure{}
	err := store.Update(func(tx *Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketName); err != nil {
			return err
		}
		return failure
	})
	require.Error(t, err)

	err = store.View(func(tx *Tx) error {
		assert.Nil(t, tx.Bucket(bucketName), "expected bucket creation to be rolled back")
		return nil
	})
	require.NoError(t, err)
}

func TestDeleteBucket(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Update(func(tx *Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}))
	require.NoError(t, store.Update(func(tx *Tx) error { return tx.DeleteBucket(bucketName) }))
	require.NoError(t, store.View(func(tx *Tx) error {
		assert.Nil(t, tx.Bucket(bucketName), "expected bucket to be gone")
		return nil
	}))
}

type errFailure struct{}

func (errFailure) Error() string { return "induced failure" }
