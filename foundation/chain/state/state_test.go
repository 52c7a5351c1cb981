package state_test

import (
	"crypto/ecdsa"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/crescentlabs/crescent/foundation/chain/asset"
	"github.com/crescentlabs/crescent/foundation/chain/block"
	"github.com/crescentlabs/crescent/foundation/chain/blocklog"
	"github.com/crescentlabs/crescent/foundation/chain/genesis"
	"github.com/crescentlabs/crescent/foundation/chain/operation"
	"github.com/crescentlabs/crescent/foundation/chain/signature"
	"github.com/crescentlabs/crescent/foundation/chain/state"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

const genesisTime = 1_700_000_000

// =============================================================================

type testChain struct {
	state *state.State
	keys  map[string]*ecdsa.PrivateKey
	gen   genesis.Genesis
}

func newTestKeys(t *testing.T) map[string]*ecdsa.PrivateKey {
	keys := make(map[string]*ecdsa.PrivateKey)
	for _, name := range []string{"init.witness", "alice", "bob"} {
		key, err := crypto.GenerateKey()
		if err != nil {
			t.Fatalf("generating key for %s: %v", name, err)
		}
		keys[name] = key
	}
	return keys
}

func newTestChain(t *testing.T, keys map[string]*ecdsa.PrivateKey) *testChain {
	gen := genesis.Genesis{
		Date:           time.Unix(genesisTime, 0),
		ChainID:        1,
		InitAccount:    "init.witness",
		InitKeyAddress: signature.PublicKeyAddress(keys["init.witness"].PublicKey),
		InitSupply:     10_000_000,
		Balances: map[string]int64{
			"alice": 1_000_000,
			"bob":   500_000,
		},
		KeyAddresses: map[string]string{
			"alice": signature.PublicKeyAddress(keys["alice"].PublicKey),
			"bob":   signature.PublicKeyAddress(keys["bob"].PublicKey),
		},
	}

	log, err := blocklog.Open("")
	if err != nil {
		t.Fatalf("opening in-memory block log: %v", err)
	}

	st, err := state.New(state.Config{Genesis: gen, BlockLog: log})
	if err != nil {
		t.Fatalf("opening chain: %v", err)
	}

	return &testChain{state: st, keys: keys, gen: gen}
}

// produce generates the next block with whichever witness owns the next
// slot.
func (tc *testChain) produce(t *testing.T) block.Block {
	owner, when := tc.state.ScheduledProducer(1)
	key, exists := tc.keys[owner]
	if !exists {
		t.Fatalf("no signing key for scheduled witness %q", owner)
	}

	b, err := tc.state.GenerateBlock(when, owner, key, state.SkipNothing)
	if err != nil {
		t.Fatalf("generating block: %v", err)
	}
	return b
}

// signedTransfer builds a CRES transfer referencing the current head
// for TaPoS.
func (tc *testChain) signedTransfer(t *testing.T, from string, to string, amount int64) operation.SignedTransaction {
	gp := tc.state.Gprops()

	tx := operation.Transaction{
		RefBlockNum:    block.NumFromID(gp.HeadBlockNumber),
		RefBlockPrefix: block.IDPrefix(gp.HeadBlockID),
		Expiration:     gp.Time + 120,
		Operations: []operation.Op{
			operation.Wrap(&operation.Transfer{
				From:   from,
				To:     to,
				Amount: asset.New(amount, asset.CRES),
			}),
		},
	}

	stx, err := tx.Sign(tc.keys[from])
	if err != nil {
		t.Fatalf("signing transfer: %v", err)
	}
	return stx
}

// registerSecondWitness makes bob a witness and advances the chain past
// the next shuffle so both witnesses take production slots.
func (tc *testChain) registerSecondWitness(t *testing.T) {
	gp := tc.state.Gprops()

	tx := operation.Transaction{
		RefBlockNum:    block.NumFromID(gp.HeadBlockNumber),
		RefBlockPrefix: block.IDPrefix(gp.HeadBlockID),
		Expiration:     gp.Time + 3000,
		Operations: []operation.Op{
			operation.Wrap(&operation.WitnessUpdate{
				Owner:           "bob",
				URL:             "https://bob.example",
				BlockSigningKey: signature.PublicKeyAddress(tc.keys["bob"].PublicKey),
				Props: operation.ChainProperties{
					AccountCreationFee: asset.New(1, asset.CRES),
					MaximumBlockSize:   65536,
				},
				Fee: asset.Zero(asset.CRES),
			}),
		},
	}
	stx, err := tx.Sign(tc.keys["bob"])
	if err != nil {
		t.Fatalf("signing witness update: %v", err)
	}
	if err := tc.state.PushTransaction(stx); err != nil {
		t.Fatalf("pushing witness update: %v", err)
	}

	for tc.state.Schedule().NumScheduledWitnesses < 2 {
		tc.produce(t)
	}
}

// =============================================================================

func Test_GenesisState(t *testing.T) {
	t.Log("Given the need to initialize a chain from its genesis file.")
	{
		t.Logf("\tTest 0:\tWhen opening a chain with an init account and seeded balances.")
		{
			tc := newTestChain(t, newTestKeys(t))

			gp := tc.state.Gprops()
			wantSupply := int64(10_000_000 + 1_000_000 + 500_000)
			if gp.CurrentSupply.Amount != wantSupply {
				t.Errorf("\t%s\tTest 0:\tShould mint the full initial supply: got %d, want %d.", failed, gp.CurrentSupply.Amount, wantSupply)
			} else {
				t.Logf("\t%s\tTest 0:\tShould mint the full initial supply.", success)
			}

			alice, err := tc.state.Account("alice")
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould seed the alice account: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould seed the alice account.", success)

			if alice.Balance.Amount != 1_000_000 {
				t.Errorf("\t%s\tTest 0:\tShould credit alice's seeded balance: got %d.", failed, alice.Balance.Amount)
			} else {
				t.Logf("\t%s\tTest 0:\tShould credit alice's seeded balance.", success)
			}

			ws := tc.state.Schedule()
			if ws.NumScheduledWitnesses != 1 || ws.CurrentShuffledWitnesses[0] != "init.witness" {
				t.Errorf("\t%s\tTest 0:\tShould schedule the init witness alone.", failed)
			} else {
				t.Logf("\t%s\tTest 0:\tShould schedule the init witness alone.", success)
			}
		}
	}
}

func Test_BlockProduction(t *testing.T) {
	t.Log("Given the need to produce blocks and apply their transactions.")
	{
		t.Logf("\tTest 0:\tWhen producing an empty first block.")
		{
			tc := newTestChain(t, newTestKeys(t))

			b := tc.produce(t)
			if b.Number != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould produce block number 1: got %d.", failed, b.Number)
			}
			t.Logf("\t%s\tTest 0:\tShould produce block number 1.", success)

			gp := tc.state.Gprops()
			if gp.HeadBlockNumber != 1 || gp.HeadBlockID != b.ID() {
				t.Errorf("\t%s\tTest 0:\tShould move the head to the new block.", failed)
			} else {
				t.Logf("\t%s\tTest 0:\tShould move the head to the new block.", success)
			}

			if !tc.state.HasHardfork(genesis.NumHardforks) {
				t.Errorf("\t%s\tTest 0:\tShould activate every scheduled hardfork immediately.", failed)
			} else {
				t.Logf("\t%s\tTest 0:\tShould activate every scheduled hardfork immediately.", success)
			}
		}

		t.Logf("\tTest 1:\tWhen a signed transfer goes through a block.")
		{
			tc := newTestChain(t, newTestKeys(t))
			tc.produce(t)

			stx := tc.signedTransfer(t, "alice", "bob", 1_000)
			if err := tc.state.PushTransaction(stx); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould accept the signed transfer: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould accept the signed transfer.", success)

			alice, _ := tc.state.Account("alice")
			if alice.Balance.Amount != 999_000 {
				t.Errorf("\t%s\tTest 1:\tShould show the pending debit: got %d.", failed, alice.Balance.Amount)
			} else {
				t.Logf("\t%s\tTest 1:\tShould show the pending debit.", success)
			}

			b := tc.produce(t)
			if len(b.Transactions) != 1 {
				t.Fatalf("\t%s\tTest 1:\tShould include the transfer in the block: got %d txs.", failed, len(b.Transactions))
			}
			t.Logf("\t%s\tTest 1:\tShould include the transfer in the block.", success)

			bob, _ := tc.state.Account("bob")
			if bob.Balance.Amount != 501_000 {
				t.Errorf("\t%s\tTest 1:\tShould credit the recipient after the block: got %d.", failed, bob.Balance.Amount)
			} else {
				t.Logf("\t%s\tTest 1:\tShould credit the recipient after the block.", success)
			}

			if len(tc.state.PendingTransactions()) != 0 {
				t.Errorf("\t%s\tTest 1:\tShould drain the pending queue.", failed)
			} else {
				t.Logf("\t%s\tTest 1:\tShould drain the pending queue.", success)
			}
		}

		t.Logf("\tTest 2:\tWhen a single witness confirms its own blocks.")
		{
			tc := newTestChain(t, newTestKeys(t))
			tc.produce(t)
			tc.produce(t)

			gp := tc.state.Gprops()
			if gp.LastIrreversibleBlockNum != 2 {
				t.Errorf("\t%s\tTest 2:\tShould make every block irreversible at once: got %d.", failed, gp.LastIrreversibleBlockNum)
			} else {
				t.Logf("\t%s\tTest 2:\tShould make every block irreversible at once.", success)
			}

			if _, err := tc.state.BlockByNumber(1); err != nil {
				t.Errorf("\t%s\tTest 2:\tShould persist irreversible blocks to the log: %v", failed, err)
			} else {
				t.Logf("\t%s\tTest 2:\tShould persist irreversible blocks to the log.", success)
			}
		}
	}
}

func Test_TransactionRejection(t *testing.T) {
	t.Log("Given the need to reject invalid or replayed transactions.")
	{
		t.Logf("\tTest 0:\tWhen the same transaction is pushed twice.")
		{
			tc := newTestChain(t, newTestKeys(t))
			tc.produce(t)

			stx := tc.signedTransfer(t, "alice", "bob", 10)
			if err := tc.state.PushTransaction(stx); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould accept the first push: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould accept the first push.", success)

			if err := tc.state.PushTransaction(stx); err == nil {
				t.Errorf("\t%s\tTest 0:\tShould reject the duplicate push.", failed)
			} else {
				t.Logf("\t%s\tTest 0:\tShould reject the duplicate push: %v", success, err)
			}
		}

		t.Logf("\tTest 1:\tWhen a transaction is already expired.")
		{
			tc := newTestChain(t, newTestKeys(t))
			tc.produce(t)

			gp := tc.state.Gprops()
			tx := operation.Transaction{
				RefBlockNum:    block.NumFromID(gp.HeadBlockNumber),
				RefBlockPrefix: block.IDPrefix(gp.HeadBlockID),
				Expiration:     gp.Time,
				Operations: []operation.Op{
					operation.Wrap(&operation.Transfer{From: "alice", To: "bob", Amount: asset.New(10, asset.CRES)}),
				},
			}
			stx, err := tx.Sign(tc.keys["alice"])
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to sign the transaction: %v", failed, err)
			}

			if err := tc.state.PushTransaction(stx); err == nil {
				t.Errorf("\t%s\tTest 1:\tShould reject the expired transaction.", failed)
			} else {
				t.Logf("\t%s\tTest 1:\tShould reject the expired transaction: %v", success, err)
			}
		}

		t.Logf("\tTest 2:\tWhen a transaction is signed with the wrong key.")
		{
			tc := newTestChain(t, newTestKeys(t))
			tc.produce(t)

			gp := tc.state.Gprops()
			tx := operation.Transaction{
				RefBlockNum:    block.NumFromID(gp.HeadBlockNumber),
				RefBlockPrefix: block.IDPrefix(gp.HeadBlockID),
				Expiration:     gp.Time + 60,
				Operations: []operation.Op{
					operation.Wrap(&operation.Transfer{From: "alice", To: "bob", Amount: asset.New(10, asset.CRES)}),
				},
			}
			stx, err := tx.Sign(tc.keys["bob"])
			if err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould be able to sign the transaction: %v", failed, err)
			}

			if err := tc.state.PushTransaction(stx); err == nil {
				t.Errorf("\t%s\tTest 2:\tShould reject the wrong signer.", failed)
			} else {
				t.Logf("\t%s\tTest 2:\tShould reject the wrong signer: %v", success, err)
			}
		}
	}
}

func Test_PopBlock(t *testing.T) {
	t.Log("Given the need to unwind a reversible head block.")
	{
		t.Logf("\tTest 0:\tWhen popping a block that is not yet irreversible.")
		{
			tc := newTestChain(t, newTestKeys(t))
			tc.registerSecondWitness(t)

			// With two witnesses the head stays ahead of the last
			// irreversible block, leaving room to pop.
			tc.produce(t)
			tc.produce(t)

			gp := tc.state.Gprops()
			if gp.LastIrreversibleBlockNum >= gp.HeadBlockNumber {
				t.Fatalf("\t%s\tTest 0:\tShould keep the head reversible with two witnesses.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould keep the head reversible with two witnesses.", success)

			stx := tc.signedTransfer(t, "alice", "bob", 777)
			if err := tc.state.PushTransaction(stx); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould accept the transfer: %v", failed, err)
			}
			b := tc.produce(t)

			if err := tc.state.PopBlock(); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to pop the head block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to pop the head block.", success)

			if head := tc.state.Gprops().HeadBlockNumber; head != b.Number-1 {
				t.Errorf("\t%s\tTest 0:\tShould move the head back one block: got %d.", failed, head)
			} else {
				t.Logf("\t%s\tTest 0:\tShould move the head back one block.", success)
			}

			if len(tc.state.PendingTransactions()) != 1 {
				t.Errorf("\t%s\tTest 0:\tShould requeue the popped transactions.", failed)
			} else {
				t.Logf("\t%s\tTest 0:\tShould requeue the popped transactions.", success)
			}
		}
	}
}

func Test_ForkSwitch(t *testing.T) {
	t.Log("Given the need to switch to a longer competing branch.")
	{
		t.Logf("\tTest 0:\tWhen a competing branch outgrows the local head.")
		{
			keys := newTestKeys(t)
			chainA := newTestChain(t, keys)
			chainB := newTestChain(t, keys)

			chainA.registerSecondWitness(t)

			syncTo := chainA.state.Gprops().HeadBlockNumber
			for num := uint64(1); num <= syncTo; num++ {
				b, err := chainA.state.BlockByNumber(num)
				if err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould read block %d from chain A: %v", failed, num, err)
				}
				if err := chainB.state.PushBlock(b, state.SkipNothing); err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould sync block %d to chain B: %v", failed, num, err)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould sync the two chains to a common head.", success)

			// Chain B produces an empty block while chain A puts a
			// transfer in the same slot and then extends further.
			bFork := chainB.produce(t)

			stx := chainA.signedTransfer(t, "alice", "bob", 4_321)
			if err := chainA.state.PushTransaction(stx); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould accept the transfer on chain A: %v", failed, err)
			}
			a1 := chainA.produce(t)
			a2 := chainA.produce(t)

			if a1.ID() == bFork.ID() {
				t.Fatalf("\t%s\tTest 0:\tShould produce divergent blocks at the same height.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould produce divergent blocks at the same height.", success)

			if err := chainB.state.PushBlock(a1, state.SkipNothing); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould store the equal-height fork block: %v", failed, err)
			}
			if head := chainB.state.Gprops().HeadBlockID; head != bFork.ID() {
				t.Errorf("\t%s\tTest 0:\tShould keep the local head on an equal-height tie.", failed)
			} else {
				t.Logf("\t%s\tTest 0:\tShould keep the local head on an equal-height tie.", success)
			}

			if err := chainB.state.PushBlock(a2, state.SkipNothing); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould switch to the longer branch: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould switch to the longer branch.", success)

			if head := chainB.state.Gprops().HeadBlockID; head != a2.ID() {
				t.Errorf("\t%s\tTest 0:\tShould land on chain A's head after the switch.", failed)
			} else {
				t.Logf("\t%s\tTest 0:\tShould land on chain A's head after the switch.", success)
			}

			bobA, _ := chainA.state.Account("bob")
			bobB, _ := chainB.state.Account("bob")
			if bobA.Balance.Amount != bobB.Balance.Amount {
				t.Errorf("\t%s\tTest 0:\tShould replay the fork's transfers: A %d, B %d.", failed, bobA.Balance.Amount, bobB.Balance.Amount)
			} else {
				t.Logf("\t%s\tTest 0:\tShould replay the fork's transfers.", success)
			}
		}
	}
}

func Test_Replay(t *testing.T) {
	t.Log("Given the need to rebuild state from the durable block log.")
	{
		t.Logf("\tTest 0:\tWhen reopening a chain over an existing log.")
		{
			keys := newTestKeys(t)
			tc := newTestChain(t, keys)
			tc.produce(t)

			stx := tc.signedTransfer(t, "alice", "bob", 2_500)
			if err := tc.state.PushTransaction(stx); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould accept the transfer: %v", failed, err)
			}
			tc.produce(t)
			want := tc.state.Gprops()

			if err := tc.state.Reindex(); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to reindex from the log: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to reindex from the log.", success)

			got := tc.state.Gprops()
			if got.HeadBlockNumber != want.HeadBlockNumber || got.HeadBlockID != want.HeadBlockID {
				t.Errorf("\t%s\tTest 0:\tShould rebuild the identical head: got %d, want %d.", failed, got.HeadBlockNumber, want.HeadBlockNumber)
			} else {
				t.Logf("\t%s\tTest 0:\tShould rebuild the identical head.", success)
			}

			bob, _ := tc.state.Account("bob")
			if bob.Balance.Amount != 502_500 {
				t.Errorf("\t%s\tTest 0:\tShould rebuild the transferred balances: got %d.", failed, bob.Balance.Amount)
			} else {
				t.Logf("\t%s\tTest 0:\tShould rebuild the transferred balances.", success)
			}
		}
	}
}
