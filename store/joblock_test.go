package store

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

func TestJobLockMutualExclusion(t *testing.T) {
	c := qt.New(t)
	lock := NewJobLock(NewKV(NewMemory()), time.Minute)

	ok, err := lock.Acquire("job-1")
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)

	ok, err = lock.Acquire("job-1")
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsFalse)

	c.Assert(lock.Release("job-1"), qt.IsNil)

	ok, err = lock.Acquire("job-1")
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
}

func TestJobLockExpiresAfterTTL(t *testing.T) {
	c := qt.New(t)
	lock := NewJobLock(NewKV(NewMemory()), time.Millisecond)

	ok, err := lock.Acquire("job-2")
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)

	time.Sleep(5 * time.Millisecond)

	ok, err = lock.Acquire("job-2")
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
}
