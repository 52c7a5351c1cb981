package market_test

import (
	"errors"
	"testing"

	"github.com/crescentlabs/crescent/foundation/chain/asset"
	"github.com/crescentlabs/crescent/foundation/chain/market"
	"github.com/crescentlabs/crescent/foundation/chain/statedb"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// =============================================================================

func newMarketDB() *statedb.DB {
	db := statedb.New()

	db.Globals.Create(func(g *statedb.GlobalProperties) {
		g.Time = 1_700_000_000
		g.CurrentSupply = asset.New(1_000_000, asset.CRES)
		g.CurrentCRDSupply = asset.New(500, asset.CRD)
	})

	db.Feeds.Create(func(f *statedb.FeedHistory) {})

	for _, name := range []string{"alice", "bob", "carol"} {
		n := name
		db.Accounts.Create(func(a *statedb.Account) {
			a.Name = n
			a.Balance = asset.Zero(asset.CRES)
			a.CRDBalance = asset.Zero(asset.CRD)
		})
	}

	return db
}

func sellOrder(db *statedb.DB, seller string, orderID uint32, forSale asset.Asset, wants asset.Asset) *statedb.LimitOrder {
	return db.LimitOrders.Create(func(o *statedb.LimitOrder) {
		o.Seller = seller
		o.OrderID = orderID
		o.ForSale = forSale.Amount
		o.SellPrice = asset.NewPrice(forSale, wants)
	})
}

// =============================================================================

func Test_OrderMatching(t *testing.T) {
	t.Log("Given the need to match orders at the resting order's price.")
	{
		t.Logf("\tTest 0:\tWhen a taker crosses a resting order.")
		{
			db := newMarketDB()
			eng := market.New(db, nil)

			sellOrder(db, "alice", 1, asset.New(100, asset.CRES), asset.New(25, asset.CRD))

			taker := sellOrder(db, "bob", 1, asset.New(10, asset.CRD), asset.New(40, asset.CRES))
			filled, err := eng.ApplyOrder(taker)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to apply the order: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to apply the order.", success)

			if !filled {
				t.Errorf("\t%s\tTest 0:\tShould fill the taker completely.", failed)
			} else {
				t.Logf("\t%s\tTest 0:\tShould fill the taker completely.", success)
			}

			if db.LimitOrderBy("bob", 1) != nil {
				t.Errorf("\t%s\tTest 0:\tShould remove the filled taker from the book.", failed)
			} else {
				t.Logf("\t%s\tTest 0:\tShould remove the filled taker from the book.", success)
			}

			rest := db.LimitOrderBy("alice", 1)
			if rest == nil || rest.ForSale != 60 {
				t.Errorf("\t%s\tTest 0:\tShould leave 60 CRES resting on the maker.", failed)
			} else {
				t.Logf("\t%s\tTest 0:\tShould leave 60 CRES resting on the maker.", success)
			}

			if got := db.AccountByName("alice").CRDBalance.Amount; got != 10 {
				t.Errorf("\t%s\tTest 0:\tShould credit the maker 10 CRD, got %d.", failed, got)
			} else {
				t.Logf("\t%s\tTest 0:\tShould credit the maker 10 CRD.", success)
			}

			if got := db.AccountByName("bob").Balance.Amount; got != 40 {
				t.Errorf("\t%s\tTest 0:\tShould credit the taker 40 CRES, got %d.", failed, got)
			} else {
				t.Logf("\t%s\tTest 0:\tShould credit the taker 40 CRES.", success)
			}
		}
	}
}

func Test_DustCancellation(t *testing.T) {
	t.Log("Given the need to cancel remainders with no proceeds.")
	{
		t.Logf("\tTest 0:\tWhen a partial fill leaves a worthless remainder.")
		{
			db := newMarketDB()
			eng := market.New(db, nil)

			sellOrder(db, "alice", 7, asset.New(1, asset.CRD), asset.New(1000, asset.CRES))

			taker := sellOrder(db, "bob", 7, asset.New(2000, asset.CRES), asset.New(1, asset.CRD))
			filled, err := eng.ApplyOrder(taker)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to apply the order: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to apply the order.", success)

			if !filled {
				t.Errorf("\t%s\tTest 0:\tShould report the taker left the book.", failed)
			} else {
				t.Logf("\t%s\tTest 0:\tShould report the taker left the book.", success)
			}

			if got := db.LimitOrders.Count(); got != 0 {
				t.Errorf("\t%s\tTest 0:\tShould have an empty book, got %d orders.", failed, got)
			} else {
				t.Logf("\t%s\tTest 0:\tShould have an empty book.", success)
			}

			// 1 CRD from the fill plus the refunded 1000 CRES remainder.
			bob := db.AccountByName("bob")
			if bob.CRDBalance.Amount != 1 || bob.Balance.Amount != 1000 {
				t.Errorf("\t%s\tTest 0:\tShould refund the dust remainder: got %s and %s.", failed, bob.Balance, bob.CRDBalance)
			} else {
				t.Logf("\t%s\tTest 0:\tShould refund the dust remainder.", success)
			}

			if got := db.AccountByName("alice").Balance.Amount; got != 1000 {
				t.Errorf("\t%s\tTest 0:\tShould pay the maker 1000 CRES, got %d.", failed, got)
			} else {
				t.Logf("\t%s\tTest 0:\tShould pay the maker 1000 CRES.", success)
			}
		}
	}
}

func Test_MarginCall(t *testing.T) {
	t.Log("Given the need to force undercollateralized positions to cover.")
	{
		t.Logf("\tTest 0:\tWhen a position falls below maintenance collateral.")
		{
			db := newMarketDB()
			eng := market.New(db, nil)

			db.Feeds.Modify(db.Feed(), func(f *statedb.FeedHistory) {
				f.CurrentMedian = asset.NewPrice(asset.New(1, asset.CRD), asset.New(2, asset.CRES))
			})

			db.CallOrders.Create(func(c *statedb.CallOrder) {
				c.Borrower = "bob"
				c.Debt = 100
				c.Collateral = 300
			})

			sellOrder(db, "carol", 3, asset.New(100, asset.CRD), asset.New(250, asset.CRES))

			filled, err := eng.CheckCallOrders(false)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to check call orders: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to check call orders.", success)

			if !filled {
				t.Errorf("\t%s\tTest 0:\tShould cover the position against the book.", failed)
			} else {
				t.Logf("\t%s\tTest 0:\tShould cover the position against the book.", success)
			}

			if db.CallOrderBy("bob") != nil {
				t.Errorf("\t%s\tTest 0:\tShould remove the fully covered position.", failed)
			} else {
				t.Logf("\t%s\tTest 0:\tShould remove the fully covered position.", success)
			}

			if got := db.AccountByName("carol").Balance.Amount; got != 250 {
				t.Errorf("\t%s\tTest 0:\tShould pay the offer 250 CRES, got %d.", failed, got)
			} else {
				t.Logf("\t%s\tTest 0:\tShould pay the offer 250 CRES.", success)
			}

			if got := db.AccountByName("bob").Balance.Amount; got != 50 {
				t.Errorf("\t%s\tTest 0:\tShould return 50 CRES excess collateral, got %d.", failed, got)
			} else {
				t.Logf("\t%s\tTest 0:\tShould return 50 CRES excess collateral.", success)
			}

			if got := db.Gprops().CurrentCRDSupply.Amount; got != 400 {
				t.Errorf("\t%s\tTest 0:\tShould retire the covered debt from supply, got %d.", failed, got)
			} else {
				t.Logf("\t%s\tTest 0:\tShould retire the covered debt from supply.", success)
			}
		}
	}
}

func Test_BlackSwan(t *testing.T) {
	t.Log("Given the need to settle the market when collateral cannot cover debt.")
	{
		t.Logf("\tTest 0:\tWhen settlement is not authorized.")
		{
			db := newMarketDB()
			eng := market.New(db, nil)

			db.Feeds.Modify(db.Feed(), func(f *statedb.FeedHistory) {
				f.CurrentMedian = asset.NewPrice(asset.New(1, asset.CRD), asset.New(2, asset.CRES))
			})

			db.CallOrders.Create(func(c *statedb.CallOrder) {
				c.Borrower = "bob"
				c.Debt = 100
				c.Collateral = 150
			})

			if _, err := eng.CheckCallOrders(false); !errors.Is(err, market.ErrBlackSwanRefused) {
				t.Errorf("\t%s\tTest 0:\tShould refuse the settlement: %v", failed, err)
			} else {
				t.Logf("\t%s\tTest 0:\tShould refuse the settlement.", success)
			}

			if db.CallOrderBy("bob") == nil {
				t.Errorf("\t%s\tTest 0:\tShould leave the position untouched.", failed)
			} else {
				t.Logf("\t%s\tTest 0:\tShould leave the position untouched.", success)
			}
		}

		t.Logf("\tTest 1:\tWhen settlement is authorized.")
		{
			db := newMarketDB()
			eng := market.New(db, nil)

			db.Feeds.Modify(db.Feed(), func(f *statedb.FeedHistory) {
				f.CurrentMedian = asset.NewPrice(asset.New(1, asset.CRD), asset.New(2, asset.CRES))
			})

			db.CallOrders.Create(func(c *statedb.CallOrder) {
				c.Borrower = "bob"
				c.Debt = 100
				c.Collateral = 150
			})

			if _, err := eng.CheckCallOrders(true); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould settle the market: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould settle the market.", success)

			feed := db.Feed()
			if !feed.BlackSwan || feed.SettlementFund != 150 {
				t.Errorf("\t%s\tTest 1:\tShould hold 150 CRES in the settlement fund, got %d.", failed, feed.SettlementFund)
			} else {
				t.Logf("\t%s\tTest 1:\tShould hold 150 CRES in the settlement fund.", success)
			}

			if got := db.CallOrders.Count(); got != 0 {
				t.Errorf("\t%s\tTest 1:\tShould close every position, got %d.", failed, got)
			} else {
				t.Logf("\t%s\tTest 1:\tShould close every position.", success)
			}

			if got := db.AccountByName("bob").Balance.Amount; got != 0 {
				t.Errorf("\t%s\tTest 1:\tShould return no collateral to the borrower, got %d.", failed, got)
			} else {
				t.Logf("\t%s\tTest 1:\tShould return no collateral to the borrower.", success)
			}
		}
	}
}
