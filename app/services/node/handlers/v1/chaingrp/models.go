package chaingrp

import (
	"github.com/crescentlabs/crescent/foundation/chain/asset"
	"github.com/crescentlabs/crescent/foundation/chain/block"
	"github.com/crescentlabs/crescent/foundation/chain/statedb"
)

type chain struct {
	HeadBlockNumber     uint64      `json:"head_block_number"`
	HeadBlockID         string      `json:"head_block_id"`
	Time                uint64      `json:"time"`
	CurrentWitness      string      `json:"current_witness"`
	CurrentSupply       asset.Asset `json:"current_supply"`
	CurrentCRDSupply    asset.Asset `json:"current_crd_supply"`
	VirtualSupply       asset.Asset `json:"virtual_supply"`
	TotalVestingFund    asset.Asset `json:"total_vesting_fund"`
	TotalVestingShares  asset.Asset `json:"total_vesting_shares"`
	CRDInterestRate     uint16      `json:"crd_interest_rate"`
	CRDPrintRate        uint16      `json:"crd_print_rate"`
	MaximumBlockSize    uint32      `json:"maximum_block_size"`
	AverageBlockSize    int64       `json:"average_block_size"`
	CurrentReserveRatio int64       `json:"current_reserve_ratio"`
	ParticipationCount  uint8       `json:"participation_count"`
	LastIrreversible    uint64      `json:"last_irreversible_block_num"`
	Pending             int         `json:"pending_transactions"`
}

type account struct {
	Name              string      `json:"name"`
	Created           uint64      `json:"created"`
	MemoKey           string      `json:"memo_key"`
	Balance           asset.Asset `json:"balance"`
	SavingsBalance    asset.Asset `json:"savings_balance"`
	CRDBalance        asset.Asset `json:"crd_balance"`
	SavingsCRDBalance asset.Asset `json:"savings_crd_balance"`
	VestingShares     asset.Asset `json:"vesting_shares"`
	VotingPower       uint16      `json:"voting_power"`
	WitnessesVotedFor uint16      `json:"witnesses_voted_for"`
	Proxy             string      `json:"proxy,omitempty"`
	PostCount         uint32      `json:"post_count"`
}

type witness struct {
	Owner                 string      `json:"owner"`
	Created               uint64      `json:"created"`
	URL                   string      `json:"url"`
	SigningKey            string      `json:"signing_key"`
	Votes                 int64       `json:"votes"`
	TotalMissed           uint32      `json:"total_missed"`
	LastConfirmedBlockNum uint64      `json:"last_confirmed_block_num"`
	CRDExchangeRate       asset.Price `json:"crd_exchange_rate"`
}

type order struct {
	Seller     string      `json:"seller"`
	OrderID    uint32      `json:"order_id"`
	Created    uint64      `json:"created"`
	Expiration uint64      `json:"expiration"`
	ForSale    int64       `json:"for_sale"`
	SellPrice  asset.Price `json:"sell_price"`
}

func toChain(gp statedb.GlobalProperties, pending int) chain {
	return chain{
		HeadBlockNumber:     gp.HeadBlockNumber,
		HeadBlockID:         gp.HeadBlockID,
		Time:                gp.Time,
		CurrentWitness:      gp.CurrentWitness,
		CurrentSupply:       gp.CurrentSupply,
		CurrentCRDSupply:    gp.CurrentCRDSupply,
		VirtualSupply:       gp.VirtualSupply,
		TotalVestingFund:    gp.TotalVestingFund,
		TotalVestingShares:  gp.TotalVestingShares,
		CRDInterestRate:     gp.CRDInterestRate,
		CRDPrintRate:        gp.CRDPrintRate,
		MaximumBlockSize:    gp.MaximumBlockSize,
		AverageBlockSize:    gp.AverageBlockSize,
		CurrentReserveRatio: gp.CurrentReserveRatio,
		ParticipationCount:  gp.ParticipationCount,
		LastIrreversible:    gp.LastIrreversibleBlockNum,
		Pending:             pending,
	}
}

func toAccount(a statedb.Account) account {
	return account{
		Name:              a.Name,
		Created:           a.Created,
		MemoKey:           a.MemoKey,
		Balance:           a.Balance,
		SavingsBalance:    a.SavingsBalance,
		CRDBalance:        a.CRDBalance,
		SavingsCRDBalance: a.SavingsCRDBalance,
		VestingShares:     a.VestingShares,
		VotingPower:       a.VotingPower,
		WitnessesVotedFor: a.WitnessesVotedFor,
		Proxy:             a.Proxy,
		PostCount:         a.PostCount,
	}
}

func toWitness(w statedb.Witness) witness {
	return witness{
		Owner:                 w.Owner,
		Created:               w.Created,
		URL:                   w.URL,
		SigningKey:            w.SigningKey,
		Votes:                 w.Votes,
		TotalMissed:           w.TotalMissed,
		LastConfirmedBlockNum: w.LastConfirmedBlockNum,
		CRDExchangeRate:       w.CRDExchangeRate,
	}
}

func toOrder(o statedb.LimitOrder) order {
	return order{
		Seller:     o.Seller,
		OrderID:    o.OrderID,
		Created:    o.Created,
		Expiration: o.Expiration,
		ForSale:    o.ForSale,
		SellPrice:  o.SellPrice,
	}
}

type blockView struct {
	ID    string      `json:"id"`
	Block block.Block `json:"block"`
}
