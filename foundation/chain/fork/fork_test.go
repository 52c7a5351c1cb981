package fork_test

import (
	"errors"
	"testing"

	"github.com/crescentlabs/crescent/foundation/chain/block"
	"github.com/crescentlabs/crescent/foundation/chain/fork"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// =============================================================================

func testBlock(t *testing.T, prev string, num uint64, witness string) block.Block {
	t.Helper()

	b, err := block.New(prev, num, 1_700_000_000+num*3, witness, nil)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct block %d: %v", failed, num, err)
	}
	return b
}

func push(t *testing.T, tr *fork.Tracker, b block.Block) *fork.Item {
	t.Helper()

	item, err := tr.PushBlock(b)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to push block %d: %v", failed, b.Number, err)
	}
	return item
}

// =============================================================================

func Test_BranchTracking(t *testing.T) {
	t.Log("Given the need to track linked blocks and reject strays.")
	{
		t.Logf("\tTest 0:\tWhen pushing a linear chain.")
		{
			tr := fork.NewTracker()

			b1 := testBlock(t, "", 1, "alpha")
			b2 := testBlock(t, b1.ID(), 2, "alpha")
			b3 := testBlock(t, b2.ID(), 3, "alpha")

			push(t, tr, b1)
			push(t, tr, b2)
			push(t, tr, b3)

			if tr.Head().Num() != 3 {
				t.Fatalf("\t%s\tShould have the tip as head: got %d", failed, tr.Head().Num())
			}
			t.Logf("\t%s\tShould have the tip as head.", success)

			if item := tr.MainBlockByNum(2); item == nil || item.ID != b2.ID() {
				t.Fatalf("\t%s\tShould find block 2 on the main branch.", failed)
			}
			if item := tr.BlockByID(b3.ID()); item == nil {
				t.Fatalf("\t%s\tShould find the tip by id.", failed)
			}
			t.Logf("\t%s\tShould find tracked blocks by number and id.", success)
		}

		t.Logf("\tTest 1:\tWhen pushing duplicates and strays.")
		{
			tr := fork.NewTracker()

			b1 := testBlock(t, "", 1, "alpha")
			push(t, tr, b1)

			if _, err := tr.PushBlock(b1); !errors.Is(err, fork.ErrDuplicate) {
				t.Fatalf("\t%s\tShould reject a duplicate block: %v", failed, err)
			}
			t.Logf("\t%s\tShould reject a duplicate block.", success)

			stray := testBlock(t, "0xdeadbeefdeadbeefdeadbeef", 5, "alpha")
			if _, err := tr.PushBlock(stray); !errors.Is(err, fork.ErrUnlinkable) {
				t.Fatalf("\t%s\tShould reject an unlinkable block: %v", failed, err)
			}
			t.Logf("\t%s\tShould reject an unlinkable block.", success)
		}
	}
}

func Test_LongestChainSwitch(t *testing.T) {
	t.Log("Given the need to move the head only to strictly longer branches.")
	{
		t.Logf("\tTest 0:\tWhen a side branch outgrows the main branch.")
		{
			tr := fork.NewTracker()

			b1 := testBlock(t, "", 1, "alpha")
			b2 := testBlock(t, b1.ID(), 2, "alpha")
			b3 := testBlock(t, b2.ID(), 3, "alpha")
			push(t, tr, b1)
			push(t, tr, b2)
			oldHead := push(t, tr, b3)

			a2 := testBlock(t, b1.ID(), 2, "beta")
			a3 := testBlock(t, a2.ID(), 3, "beta")
			a4 := testBlock(t, a3.ID(), 4, "beta")

			push(t, tr, a2)
			push(t, tr, a3)
			if tr.Head().ID != oldHead.ID {
				t.Fatalf("\t%s\tShould keep the head on an equal-height tie.", failed)
			}
			t.Logf("\t%s\tShould keep the head on an equal-height tie.", success)

			newHead := push(t, tr, a4)
			if tr.Head().ID != newHead.ID {
				t.Fatalf("\t%s\tShould move the head to the longer branch.", failed)
			}
			t.Logf("\t%s\tShould move the head to the longer branch.", success)

			newBranch, oldBranch, err := tr.FetchBranchFrom(newHead.ID, oldHead.ID)
			if err != nil {
				t.Fatalf("\t%s\tShould extract the divergent branches: %v", failed, err)
			}
			if len(newBranch) != 3 || len(oldBranch) != 2 {
				t.Fatalf("\t%s\tShould split at the common ancestor: got %d and %d", failed, len(newBranch), len(oldBranch))
			}
			if newBranch[0].ID != a4.ID() || newBranch[2].ID != a2.ID() {
				t.Fatalf("\t%s\tShould order the new branch tip first.", failed)
			}
			if oldBranch[0].ID != b3.ID() || oldBranch[1].ID != b2.ID() {
				t.Fatalf("\t%s\tShould order the old branch tip first.", failed)
			}
			t.Logf("\t%s\tShould extract both branches tip first, excluding the ancestor.", success)
		}
	}
}

func Test_RemoveAndPrune(t *testing.T) {
	t.Log("Given the need to purge failed branches and bound memory.")
	{
		t.Logf("\tTest 0:\tWhen removing a branch root.")
		{
			tr := fork.NewTracker()

			b1 := testBlock(t, "", 1, "alpha")
			b2 := testBlock(t, b1.ID(), 2, "alpha")
			b3 := testBlock(t, b2.ID(), 3, "alpha")
			push(t, tr, b1)
			push(t, tr, b2)
			push(t, tr, b3)

			a2 := testBlock(t, b1.ID(), 2, "beta")
			a3 := testBlock(t, a2.ID(), 3, "beta")
			a4 := testBlock(t, a3.ID(), 4, "beta")
			push(t, tr, a2)
			push(t, tr, a3)
			push(t, tr, a4)

			tr.Remove(a2.ID())

			if tr.BlockByID(a3.ID()) != nil || tr.BlockByID(a4.ID()) != nil {
				t.Fatalf("\t%s\tShould purge every descendant of the removed block.", failed)
			}
			t.Logf("\t%s\tShould purge every descendant of the removed block.", success)

			if tr.Head().ID != b3.ID() {
				t.Fatalf("\t%s\tShould recompute the head onto the surviving branch.", failed)
			}
			t.Logf("\t%s\tShould recompute the head onto the surviving branch.", success)
		}

		t.Logf("\tTest 1:\tWhen the retention window shrinks.")
		{
			tr := fork.NewTracker()

			b1 := testBlock(t, "", 1, "alpha")
			b2 := testBlock(t, b1.ID(), 2, "alpha")
			b3 := testBlock(t, b2.ID(), 3, "alpha")
			push(t, tr, b1)
			push(t, tr, b2)
			push(t, tr, b3)

			tr.SetMaxSize(2)

			if tr.BlockByID(b1.ID()) != nil {
				t.Fatalf("\t%s\tShould prune blocks below the horizon.", failed)
			}
			t.Logf("\t%s\tShould prune blocks below the horizon.", success)

			if err := tr.PopBlock(); err != nil {
				t.Fatalf("\t%s\tShould pop the head within the window: %v", failed, err)
			}
			if tr.Head().Num() != 2 {
				t.Fatalf("\t%s\tShould land the head on the predecessor: got %d", failed, tr.Head().Num())
			}
			t.Logf("\t%s\tShould pop the head onto its predecessor.", success)
		}

		t.Logf("\tTest 2:\tWhen popping the tracker root.")
		{
			tr := fork.NewTracker()
			push(t, tr, testBlock(t, "", 1, "alpha"))

			if err := tr.PopBlock(); err == nil {
				t.Fatalf("\t%s\tShould refuse to pop the root.", failed)
			}
			t.Logf("\t%s\tShould refuse to pop the root.", success)
		}
	}
}
