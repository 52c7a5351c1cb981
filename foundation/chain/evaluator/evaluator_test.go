package evaluator_test

import (
	"math/big"
	"testing"

	"github.com/crescentlabs/crescent/foundation/chain/asset"
	"github.com/crescentlabs/crescent/foundation/chain/evaluator"
	"github.com/crescentlabs/crescent/foundation/chain/genesis"
	"github.com/crescentlabs/crescent/foundation/chain/market"
	"github.com/crescentlabs/crescent/foundation/chain/operation"
	"github.com/crescentlabs/crescent/foundation/chain/reward"
	"github.com/crescentlabs/crescent/foundation/chain/statedb"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

const testTime = uint64(1_700_000_000)

func preFundGate(n uint16) bool { return n < genesis.HardforkRewardFunds }

func newTestContext() *evaluator.Context {
	db := statedb.New()

	db.Globals.Create(func(g *statedb.GlobalProperties) {
		g.Time = testTime
		g.CurrentWitness = "alice"
		g.CurrentSupply = asset.New(10_000_000, asset.CRES)
		g.VirtualSupply = asset.New(10_000_000, asset.CRES)
		g.CurrentCRDSupply = asset.New(4_000, asset.CRD)
		g.TotalVestingFund = asset.Zero(asset.CRES)
		g.TotalVestingShares = asset.Zero(asset.VESTS)
		g.TotalRewardFund = asset.Zero(asset.CRES)
		g.TotalRewardShares2 = big.NewInt(0)
	})

	db.Feeds.Create(func(f *statedb.FeedHistory) {})

	db.Schedules.Create(func(s *statedb.WitnessSchedule) {
		s.MedianProps = operation.ChainProperties{
			AccountCreationFee: asset.New(5, asset.CRES),
			MaximumBlockSize:   65536,
		}
	})

	vested := map[string]int64{
		"alice": 1_000_000_000,
		"bob":   500_000_000,
	}

	for _, name := range []string{"alice", "bob", "carol"} {
		n := name
		db.Accounts.Create(func(a *statedb.Account) {
			a.Name = n
			a.Balance = asset.New(1_000_000, asset.CRES)
			a.SavingsBalance = asset.Zero(asset.CRES)
			a.CRDBalance = asset.New(1_000, asset.CRD)
			a.SavingsCRDBalance = asset.Zero(asset.CRD)
			a.CRDSeconds = big.NewInt(0)
			a.CRDSecondsLastUpdate = testTime
			a.LastInterestPayment = testTime
			a.VestingShares = asset.New(vested[n], asset.VESTS)
			a.VestingWithdrawRate = asset.Zero(asset.VESTS)
			a.VotingPower = genesis.VotePowerFull
			a.LastVoteTime = testTime
			a.AverageBandwidth = big.NewInt(0)
			a.LifetimeBandwidth = big.NewInt(0)
			a.AverageMarketBandwidth = big.NewInt(0)
		})
	}

	return &evaluator.Context{
		DB:      db,
		Market:  market.New(db, nil),
		Reward:  reward.New(db, nil, preFundGate),
		HasFork: preFundGate,
	}
}

// =============================================================================

func Test_AccountCreate(t *testing.T) {
	t.Log("Given the need to create accounts with a vested registration fee.")
	{
		t.Logf("\tTest 0:\tWhen the creator pays at least the witness-voted fee.")
		{
			ctx := newTestContext()

			op := operation.AccountCreate{
				Creator:        "alice",
				NewAccountName: "dave",
				Fee:            asset.New(10, asset.CRES),
				MemoKey:        "0xDave",
			}
			if err := evaluator.Apply(ctx, &op); err != nil {
				t.Fatalf("\t%s\tShould be able to create the account: %v", failed, err)
			}
			t.Logf("\t%s\tShould be able to create the account.", success)

			alice := ctx.DB.AccountByName("alice")
			if alice.Balance.Amount != 999_990 {
				t.Errorf("\t%s\tShould debit the fee, got balance %d.", failed, alice.Balance.Amount)
			} else {
				t.Logf("\t%s\tShould debit the fee.", success)
			}

			dave := ctx.DB.AccountByName("dave")
			if dave == nil {
				t.Fatalf("\t%s\tShould find the new account.", failed)
			}
			if dave.VestingShares.Amount != 10_000_000 {
				t.Errorf("\t%s\tShould vest the fee at the initial share price, got %d VESTS.", failed, dave.VestingShares.Amount)
			} else {
				t.Logf("\t%s\tShould vest the fee at the initial share price.", success)
			}
			if dave.RecoveryAccount != "alice" {
				t.Errorf("\t%s\tShould set the creator as recovery account, got %q.", failed, dave.RecoveryAccount)
			} else {
				t.Logf("\t%s\tShould set the creator as recovery account.", success)
			}
		}

		t.Logf("\tTest 1:\tWhen the fee is below the minimum or the name is taken.")
		{
			ctx := newTestContext()

			low := operation.AccountCreate{
				Creator:        "alice",
				NewAccountName: "dave",
				Fee:            asset.New(1, asset.CRES),
			}
			if err := evaluator.Apply(ctx, &low); err == nil {
				t.Errorf("\t%s\tShould reject a fee below the minimum.", failed)
			} else {
				t.Logf("\t%s\tShould reject a fee below the minimum.", success)
			}

			dup := operation.AccountCreate{
				Creator:        "alice",
				NewAccountName: "bob",
				Fee:            asset.New(10, asset.CRES),
			}
			if err := evaluator.Apply(ctx, &dup); err == nil {
				t.Errorf("\t%s\tShould reject a taken account name.", failed)
			} else {
				t.Logf("\t%s\tShould reject a taken account name.", success)
			}
		}
	}
}

func Test_TransfersAndSavings(t *testing.T) {
	t.Log("Given the need to move liquid funds between accounts and savings.")
	{
		t.Logf("\tTest 0:\tWhen transferring CRES and cycling a savings withdrawal.")
		{
			ctx := newTestContext()

			transfer := operation.Transfer{From: "alice", To: "bob", Amount: asset.New(100, asset.CRES)}
			if err := evaluator.Apply(ctx, &transfer); err != nil {
				t.Fatalf("\t%s\tShould be able to transfer: %v", failed, err)
			}
			t.Logf("\t%s\tShould be able to transfer.", success)

			if bal := ctx.DB.AccountByName("bob").Balance.Amount; bal != 1_000_100 {
				t.Errorf("\t%s\tShould credit the receiver, got %d.", failed, bal)
			} else {
				t.Logf("\t%s\tShould credit the receiver.", success)
			}

			deposit := operation.TransferToSavings{From: "bob", To: "bob", Amount: asset.New(50, asset.CRES)}
			if err := evaluator.Apply(ctx, &deposit); err != nil {
				t.Fatalf("\t%s\tShould be able to deposit to savings: %v", failed, err)
			}
			t.Logf("\t%s\tShould be able to deposit to savings.", success)

			withdraw := operation.TransferFromSavings{From: "bob", RequestID: 1, To: "bob", Amount: asset.New(20, asset.CRES)}
			if err := evaluator.Apply(ctx, &withdraw); err != nil {
				t.Fatalf("\t%s\tShould be able to request a savings withdrawal: %v", failed, err)
			}
			t.Logf("\t%s\tShould be able to request a savings withdrawal.", success)

			req := ctx.DB.SavingsWithdrawBy("bob", 1)
			if req == nil {
				t.Fatalf("\t%s\tShould find the pending withdrawal.", failed)
			}
			if req.Complete != testTime+genesis.SavingsWithdrawTimeSeconds {
				t.Errorf("\t%s\tShould schedule the withdrawal three days out, got %d.", failed, req.Complete)
			} else {
				t.Logf("\t%s\tShould schedule the withdrawal three days out.", success)
			}

			cancel := operation.CancelTransferFromSavings{From: "bob", RequestID: 1}
			if err := evaluator.Apply(ctx, &cancel); err != nil {
				t.Fatalf("\t%s\tShould be able to cancel the withdrawal: %v", failed, err)
			}
			t.Logf("\t%s\tShould be able to cancel the withdrawal.", success)

			bob := ctx.DB.AccountByName("bob")
			if bob.SavingsBalance.Amount != 50 || bob.SavingsWithdrawRequests != 0 {
				t.Errorf("\t%s\tShould restore the savings balance, got %d with %d requests.", failed, bob.SavingsBalance.Amount, bob.SavingsWithdrawRequests)
			} else {
				t.Logf("\t%s\tShould restore the savings balance.", success)
			}
		}
	}
}

func Test_Voting(t *testing.T) {
	t.Log("Given the need to convert stake-weighted votes into reward shares.")
	{
		t.Logf("\tTest 0:\tWhen a full-power vote lands on a fresh post.")
		{
			ctx := newTestContext()

			post := operation.Comment{
				ParentPermlink: "life",
				Author:         "alice",
				Permlink:       "my-post",
				Title:          "My Post",
				Body:           "hello",
			}
			if err := evaluator.Apply(ctx, &post); err != nil {
				t.Fatalf("\t%s\tShould be able to post: %v", failed, err)
			}
			t.Logf("\t%s\tShould be able to post.", success)

			vote := operation.Vote{Voter: "bob", Author: "alice", Permlink: "my-post", Weight: 10000}
			if err := evaluator.Apply(ctx, &vote); err != nil {
				t.Fatalf("\t%s\tShould be able to vote: %v", failed, err)
			}
			t.Logf("\t%s\tShould be able to vote.", success)

			// 500M vested at full weight drains 50 of 10000 power and
			// casts shares/10000 per unit of power used.
			c := ctx.DB.CommentBy("alice", "my-post")
			if c.NetRshares != 2_500_000 {
				t.Errorf("\t%s\tShould accumulate reward shares, got %d.", failed, c.NetRshares)
			} else {
				t.Logf("\t%s\tShould accumulate reward shares.", success)
			}

			bob := ctx.DB.AccountByName("bob")
			if bob.VotingPower != 9950 {
				t.Errorf("\t%s\tShould drain voting power, got %d.", failed, bob.VotingPower)
			} else {
				t.Logf("\t%s\tShould drain voting power.", success)
			}

			want := new(big.Int).Mul(big.NewInt(2_500_000), big.NewInt(2_500_000))
			if ctx.DB.Gprops().TotalRewardShares2.Cmp(want) != 0 {
				t.Errorf("\t%s\tShould add squared shares to the global total, got %s.", failed, ctx.DB.Gprops().TotalRewardShares2)
			} else {
				t.Logf("\t%s\tShould add squared shares to the global total.", success)
			}

			repeat := operation.Vote{Voter: "bob", Author: "alice", Permlink: "my-post", Weight: 10000}
			if err := evaluator.Apply(ctx, &repeat); err == nil {
				t.Errorf("\t%s\tShould reject an identical re-vote.", failed)
			} else {
				t.Logf("\t%s\tShould reject an identical re-vote.", success)
			}
		}
	}
}

func Test_WitnessVoting(t *testing.T) {
	t.Log("Given the need to tally witness approval by vested stake.")
	{
		t.Logf("\tTest 0:\tWhen accounts approve a witness directly and by proxy.")
		{
			ctx := newTestContext()

			reg := operation.WitnessUpdate{
				Owner:           "carol",
				URL:             "https://carol.example",
				BlockSigningKey: "0xCarol",
				Props: operation.ChainProperties{
					AccountCreationFee: asset.New(5, asset.CRES),
					MaximumBlockSize:   65536,
				},
				Fee: asset.Zero(asset.CRES),
			}
			if err := evaluator.Apply(ctx, &reg); err != nil {
				t.Fatalf("\t%s\tShould be able to register a witness: %v", failed, err)
			}
			t.Logf("\t%s\tShould be able to register a witness.", success)

			approve := operation.AccountWitnessVote{Account: "alice", Witness: "carol", Approve: true}
			if err := evaluator.Apply(ctx, &approve); err != nil {
				t.Fatalf("\t%s\tShould be able to approve the witness: %v", failed, err)
			}
			t.Logf("\t%s\tShould be able to approve the witness.", success)

			if votes := ctx.DB.WitnessByOwner("carol").Votes; votes != 1_000_000_000 {
				t.Errorf("\t%s\tShould weigh the approval by vested stake, got %d.", failed, votes)
			} else {
				t.Logf("\t%s\tShould weigh the approval by vested stake.", success)
			}

			proxy := operation.AccountWitnessProxy{Account: "bob", Proxy: "alice"}
			if err := evaluator.Apply(ctx, &proxy); err != nil {
				t.Fatalf("\t%s\tShould be able to set a proxy: %v", failed, err)
			}
			t.Logf("\t%s\tShould be able to set a proxy.", success)

			if votes := ctx.DB.WitnessByOwner("carol").Votes; votes != 1_500_000_000 {
				t.Errorf("\t%s\tShould carry proxied stake to the witness, got %d.", failed, votes)
			} else {
				t.Logf("\t%s\tShould carry proxied stake to the witness.", success)
			}

			unapprove := operation.AccountWitnessVote{Account: "alice", Witness: "carol", Approve: false}
			if err := evaluator.Apply(ctx, &unapprove); err != nil {
				t.Fatalf("\t%s\tShould be able to withdraw approval: %v", failed, err)
			}
			t.Logf("\t%s\tShould be able to withdraw approval.", success)

			if votes := ctx.DB.WitnessByOwner("carol").Votes; votes != 0 {
				t.Errorf("\t%s\tShould remove direct and proxied weight together, got %d.", failed, votes)
			} else {
				t.Logf("\t%s\tShould remove direct and proxied weight together.", success)
			}
		}
	}
}

func Test_EscrowLifecycle(t *testing.T) {
	t.Log("Given the need to hold funds with an agent until release.")
	{
		t.Logf("\tTest 0:\tWhen an escrow is funded, ratified and released.")
		{
			ctx := newTestContext()

			open := operation.EscrowTransfer{
				From:                 "alice",
				To:                   "bob",
				Agent:                "carol",
				EscrowID:             7,
				CRESAmount:           asset.New(100, asset.CRES),
				CRDAmount:            asset.Zero(asset.CRD),
				Fee:                  asset.New(5, asset.CRES),
				RatificationDeadline: testTime + 1_000,
				EscrowExpiration:     testTime + 2_000,
			}
			if err := evaluator.Apply(ctx, &open); err != nil {
				t.Fatalf("\t%s\tShould be able to open the escrow: %v", failed, err)
			}
			t.Logf("\t%s\tShould be able to open the escrow.", success)

			if bal := ctx.DB.AccountByName("alice").Balance.Amount; bal != 999_895 {
				t.Errorf("\t%s\tShould lock funds and fee, got balance %d.", failed, bal)
			} else {
				t.Logf("\t%s\tShould lock funds and fee.", success)
			}

			for _, who := range []string{"bob", "carol"} {
				approve := operation.EscrowApprove{From: "alice", To: "bob", Agent: "carol", Who: who, EscrowID: 7, Approve: true}
				if err := evaluator.Apply(ctx, &approve); err != nil {
					t.Fatalf("\t%s\tShould be able to ratify as %q: %v", failed, who, err)
				}
			}
			t.Logf("\t%s\tShould be able to ratify as both parties.", success)

			if bal := ctx.DB.AccountByName("carol").Balance.Amount; bal != 1_000_005 {
				t.Errorf("\t%s\tShould pay the agent fee on full ratification, got %d.", failed, bal)
			} else {
				t.Logf("\t%s\tShould pay the agent fee on full ratification.", success)
			}

			release := operation.EscrowRelease{
				From:       "alice",
				To:         "bob",
				Agent:      "carol",
				Who:        "alice",
				Receiver:   "bob",
				EscrowID:   7,
				CRESAmount: asset.New(100, asset.CRES),
				CRDAmount:  asset.Zero(asset.CRD),
			}
			if err := evaluator.Apply(ctx, &release); err != nil {
				t.Fatalf("\t%s\tShould be able to release to the receiver: %v", failed, err)
			}
			t.Logf("\t%s\tShould be able to release to the receiver.", success)

			if bal := ctx.DB.AccountByName("bob").Balance.Amount; bal != 1_000_100 {
				t.Errorf("\t%s\tShould credit the receiver, got %d.", failed, bal)
			} else {
				t.Logf("\t%s\tShould credit the receiver.", success)
			}
			if ctx.DB.EscrowBy("alice", 7) != nil {
				t.Errorf("\t%s\tShould remove the emptied escrow.", failed)
			} else {
				t.Logf("\t%s\tShould remove the emptied escrow.", success)
			}
		}
	}
}

func Test_LimitOrderPlacement(t *testing.T) {
	t.Log("Given the need to place limit orders through the matching engine.")
	{
		t.Logf("\tTest 0:\tWhen a fill-or-kill order finds no counterparty.")
		{
			ctx := newTestContext()

			fok := operation.LimitOrderCreate{
				Owner:        "alice",
				OrderID:      1,
				AmountToSell: asset.New(100, asset.CRES),
				MinToReceive: asset.New(25, asset.CRD),
				FillOrKill:   true,
				Expiration:   testTime + 60,
			}
			if err := evaluator.Apply(ctx, &fok); err == nil {
				t.Errorf("\t%s\tShould reject a fill-or-kill order on an empty book.", failed)
			} else {
				t.Logf("\t%s\tShould reject a fill-or-kill order on an empty book.", success)
			}
		}

		t.Logf("\tTest 1:\tWhen a resting order is placed.")
		{
			ctx := newTestContext()

			place := operation.LimitOrderCreate{
				Owner:        "alice",
				OrderID:      2,
				AmountToSell: asset.New(100, asset.CRES),
				MinToReceive: asset.New(25, asset.CRD),
				Expiration:   testTime + 60,
			}
			if err := evaluator.Apply(ctx, &place); err != nil {
				t.Fatalf("\t%s\tShould be able to place the order: %v", failed, err)
			}
			t.Logf("\t%s\tShould be able to place the order.", success)

			if ctx.DB.LimitOrderBy("alice", 2) == nil {
				t.Errorf("\t%s\tShould keep the unmatched order on the book.", failed)
			} else {
				t.Logf("\t%s\tShould keep the unmatched order on the book.", success)
			}
			if bal := ctx.DB.AccountByName("alice").Balance.Amount; bal != 999_900 {
				t.Errorf("\t%s\tShould debit the sale amount, got %d.", failed, bal)
			} else {
				t.Logf("\t%s\tShould debit the sale amount.", success)
			}
		}
	}
}
