package token

import (
	"github.com/hashicorp/vault/sdk/helper/locksutil"
)

// userLocks serialises index updates per (realm, user). Users are spread
// over locksutil's fixed set of lock entries; unrelated users may share one.
type userLocks []*locksutil.LockEntry

func newUserLocks() userLocks {
	return locksutil.CreateLocks()
}

func lockKey(realm RealmID, user string) string {
	return string(realm) + "\x00" + user
}

func (l userLocks) lock(realm RealmID, user string) func() {
	entry := locksutil.LockForKey(l, lockKey(realm, user))
	entry.Lock()
	return entry.Unlock
}
