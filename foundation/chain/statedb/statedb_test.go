package statedb_test

import (
	"errors"
	"testing"

	"github.com/crescentlabs/crescent/foundation/chain/asset"
	"github.com/crescentlabs/crescent/foundation/chain/statedb"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// =============================================================================

func createAccount(db *statedb.DB, name string, balance int64) *statedb.Account {
	return db.Accounts.Create(func(a *statedb.Account) {
		a.Name = name
		a.Balance = asset.New(balance, asset.CRES)
	})
}

// =============================================================================

func Test_UndoSession(t *testing.T) {
	t.Log("Given the need to revert a batch of mutations byte-exactly.")
	{
		t.Logf("\tTest 0:\tWhen undoing creates, modifies and removes.")
		{
			db := statedb.New()
			alice := createAccount(db, "alice", 100)
			carol := createAccount(db, "carol", 7)

			ses := db.StartUndoSession(true)

			createAccount(db, "bob", 25)
			db.Accounts.Modify(alice, func(a *statedb.Account) {
				a.Balance = asset.New(50, asset.CRES)
			})
			db.Accounts.Remove(carol)

			if got := db.Accounts.Count(); got != 2 {
				t.Fatalf("\t%s\tShould see 2 accounts inside the session: got %d", failed, got)
			}
			t.Logf("\t%s\tShould see 2 accounts inside the session.", success)

			if err := ses.Undo(); err != nil {
				t.Fatalf("\t%s\tShould be able to undo the session: %v", failed, err)
			}
			t.Logf("\t%s\tShould be able to undo the session.", success)

			if got := db.Accounts.Count(); got != 2 {
				t.Fatalf("\t%s\tShould be back to the pre-session accounts: got %d", failed, got)
			}
			alice = db.AccountByName("alice")
			if alice == nil || alice.Balance.Amount != 100 {
				t.Fatalf("\t%s\tShould restore alice's balance to 100.", failed)
			}
			if db.AccountByName("carol") == nil {
				t.Fatalf("\t%s\tShould restore the removed account.", failed)
			}
			if db.AccountByName("bob") != nil {
				t.Fatalf("\t%s\tShould drop the created account.", failed)
			}
			t.Logf("\t%s\tShould restore the pre-session state exactly.", success)

			if err := ses.Undo(); err != nil {
				t.Fatalf("\t%s\tShould tolerate undo on a finished session: %v", failed, err)
			}
			t.Logf("\t%s\tShould tolerate undo on a finished session.", success)
		}

		t.Logf("\tTest 1:\tWhen a pushed session is reverted later.")
		{
			db := statedb.New()
			alice := createAccount(db, "alice", 100)

			ses := db.StartUndoSession(true)
			db.Accounts.Modify(alice, func(a *statedb.Account) {
				a.Balance = asset.New(10, asset.CRES)
			})
			ses.Push()

			if got := db.AccountByName("alice").Balance.Amount; got != 10 {
				t.Fatalf("\t%s\tShould keep the pushed change: got %d", failed, got)
			}
			t.Logf("\t%s\tShould keep the pushed change.", success)

			if err := db.Undo(); err != nil {
				t.Fatalf("\t%s\tShould be able to undo the pushed state: %v", failed, err)
			}
			if got := db.AccountByName("alice").Balance.Amount; got != 100 {
				t.Fatalf("\t%s\tShould restore the balance on store undo: got %d", failed, got)
			}
			t.Logf("\t%s\tShould restore the balance on store undo.", success)
		}
	}
}

func Test_NestedSquash(t *testing.T) {
	t.Log("Given the need to merge a child session into its parent.")
	{
		t.Logf("\tTest 0:\tWhen a squashed child is undone by its parent.")
		{
			db := statedb.New()
			alice := createAccount(db, "alice", 100)

			parent := db.StartUndoSession(true)
			db.Accounts.Modify(alice, func(a *statedb.Account) {
				a.Balance = asset.New(80, asset.CRES)
			})

			child := db.StartUndoSession(true)
			createAccount(db, "bob", 25)
			db.Accounts.Modify(alice, func(a *statedb.Account) {
				a.Balance = asset.New(60, asset.CRES)
			})

			if err := child.Squash(); err != nil {
				t.Fatalf("\t%s\tShould be able to squash the child: %v", failed, err)
			}
			t.Logf("\t%s\tShould be able to squash the child.", success)

			if got := db.AccountByName("alice").Balance.Amount; got != 60 {
				t.Fatalf("\t%s\tShould keep the child's changes after squash: got %d", failed, got)
			}
			t.Logf("\t%s\tShould keep the child's changes after squash.", success)

			if err := parent.Undo(); err != nil {
				t.Fatalf("\t%s\tShould be able to undo the parent: %v", failed, err)
			}
			if got := db.AccountByName("alice").Balance.Amount; got != 100 {
				t.Fatalf("\t%s\tShould revert both sessions together: got %d", failed, got)
			}
			if db.AccountByName("bob") != nil {
				t.Fatalf("\t%s\tShould revert the squashed create.", failed)
			}
			t.Logf("\t%s\tShould revert both sessions together.", success)
		}

		t.Logf("\tTest 1:\tWhen sessions end out of LIFO order.")
		{
			db := statedb.New()

			parent := db.StartUndoSession(true)
			child := db.StartUndoSession(true)

			if err := parent.Undo(); !errors.Is(err, statedb.ErrSessionOrder) {
				t.Fatalf("\t%s\tShould refuse to undo the parent first: %v", failed, err)
			}
			t.Logf("\t%s\tShould refuse to undo the parent first.", success)

			if err := child.Undo(); err != nil {
				t.Fatalf("\t%s\tShould undo the child: %v", failed, err)
			}
			if err := parent.Undo(); err != nil {
				t.Fatalf("\t%s\tShould then undo the parent: %v", failed, err)
			}
			t.Logf("\t%s\tShould accept the sessions in LIFO order.", success)
		}
	}
}

func Test_RevisionDiscipline(t *testing.T) {
	t.Log("Given the need to map undo depth onto chain revisions.")
	{
		t.Logf("\tTest 0:\tWhen sessions stack on a rebased revision.")
		{
			db := statedb.New()
			alice := createAccount(db, "alice", 100)

			if err := db.SetRevision(10); err != nil {
				t.Fatalf("\t%s\tShould rebase the revision at depth zero: %v", failed, err)
			}
			t.Logf("\t%s\tShould rebase the revision at depth zero.", success)

			s1 := db.StartUndoSession(true)
			db.Accounts.Modify(alice, func(a *statedb.Account) {
				a.Balance = asset.New(70, asset.CRES)
			})
			s1.Push()

			s2 := db.StartUndoSession(true)
			db.Accounts.Modify(alice, func(a *statedb.Account) {
				a.Balance = asset.New(40, asset.CRES)
			})
			s2.Push()

			if got := db.Revision(); got != 12 {
				t.Fatalf("\t%s\tShould be at revision 12 with two sessions: got %d", failed, got)
			}
			t.Logf("\t%s\tShould be at revision 12 with two sessions.", success)

			if err := db.SetRevision(5); !errors.Is(err, statedb.ErrSessionOrder) {
				t.Fatalf("\t%s\tShould refuse a rebase with live undo state: %v", failed, err)
			}
			t.Logf("\t%s\tShould refuse a rebase with live undo state.", success)
		}

		t.Logf("\tTest 1:\tWhen committing makes the bottom session irreversible.")
		{
			db := statedb.New()
			alice := createAccount(db, "alice", 100)
			db.SetRevision(10)

			s1 := db.StartUndoSession(true)
			db.Accounts.Modify(alice, func(a *statedb.Account) {
				a.Balance = asset.New(70, asset.CRES)
			})
			s1.Push()

			s2 := db.StartUndoSession(true)
			db.Accounts.Modify(alice, func(a *statedb.Account) {
				a.Balance = asset.New(40, asset.CRES)
			})
			s2.Push()

			db.Commit(11)

			if got := db.Revision(); got != 12 {
				t.Fatalf("\t%s\tShould keep the revision across a commit: got %d", failed, got)
			}
			t.Logf("\t%s\tShould keep the revision across a commit.", success)

			if err := db.Undo(); err != nil {
				t.Fatalf("\t%s\tShould undo the remaining session: %v", failed, err)
			}
			if got := db.AccountByName("alice").Balance.Amount; got != 70 {
				t.Fatalf("\t%s\tShould land on the committed change: got %d", failed, got)
			}
			t.Logf("\t%s\tShould land on the committed change.", success)

			if err := db.Undo(); !errors.Is(err, statedb.ErrSessionOrder) {
				t.Fatalf("\t%s\tShould refuse to undo past the commit: %v", failed, err)
			}
			t.Logf("\t%s\tShould refuse to undo past the commit.", success)
		}
	}
}
