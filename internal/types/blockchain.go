package types

import (
	"fmt"
	"strings"
)

// Blockchain identifies the source network of an entity.
type Blockchain string

const (
	BlockchainEthereum   Blockchain = "ETHEREUM"
	BlockchainPolygon    Blockchain = "POLYGON"
	BlockchainFlow       Blockchain = "FLOW"
	BlockchainTezos      Blockchain = "TEZOS"
	BlockchainSolana     Blockchain = "SOLANA"
	BlockchainImmutablex Blockchain = "IMMUTABLEX"
	BlockchainAptos      Blockchain = "APTOS"
)

// ItemID is the composite id of an item: CHAIN:token:tokenId.
type ItemID struct {
	Blockchain Blockchain `json:"blockchain"`
	Token      string     `json:"token"`
	TokenID    string     `json:"token_id"`
}

func (id ItemID) String() string {
	return fmt.Sprintf("%s:%s:%s", id.Blockchain, id.Token, id.TokenID)
}

// CollectionID is the collection an item belongs to.
func (id ItemID) CollectionID() CollectionID {
	return CollectionID{Blockchain: id.Blockchain, Token: id.Token}
}

func ParseItemID(raw string) (ItemID, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return ItemID{}, fmt.Errorf("invalid item id %q", raw)
	}
	return ItemID{Blockchain: Blockchain(parts[0]), Token: parts[1], TokenID: parts[2]}, nil
}

// OwnershipID is the composite id of an ownership: CHAIN:token:tokenId:owner.
type OwnershipID struct {
	Blockchain Blockchain `json:"blockchain"`
	Token      string     `json:"token"`
	TokenID    string     `json:"token_id"`
	Owner      string     `json:"owner"`
}

func (id OwnershipID) String() string {
	return fmt.Sprintf("%s:%s:%s:%s", id.Blockchain, id.Token, id.TokenID, id.Owner)
}

func (id OwnershipID) ItemID() ItemID {
	return ItemID{Blockchain: id.Blockchain, Token: id.Token, TokenID: id.TokenID}
}

func ParseOwnershipID(raw string) (OwnershipID, error) {
	parts := strings.SplitN(raw, ":", 4)
	if len(parts) != 4 || parts[0] == "" || parts[1] == "" || parts[2] == "" || parts[3] == "" {
		return OwnershipID{}, fmt.Errorf("invalid ownership id %q", raw)
	}
	return OwnershipID{
		Blockchain: Blockchain(parts[0]),
		Token:      parts[1],
		TokenID:    parts[2],
		Owner:      parts[3],
	}, nil
}

// CollectionID is the composite id of a collection: CHAIN:address.
type CollectionID struct {
	Blockchain Blockchain `json:"blockchain"`
	Token      string     `json:"token"`
}

func (id CollectionID) String() string {
	return fmt.Sprintf("%s:%s", id.Blockchain, id.Token)
}

func ParseCollectionID(raw string) (CollectionID, error) {
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return CollectionID{}, fmt.Errorf("invalid collection id %q", raw)
	}
	return CollectionID{Blockchain: Blockchain(parts[0]), Token: parts[1]}, nil
}

// BlockchainOf extracts the chain prefix from any composite id.
func BlockchainOf(raw string) (Blockchain, error) {
	idx := strings.IndexByte(raw, ':')
	if idx <= 0 {
		return "", fmt.Errorf("invalid composite id %q", raw)
	}
	return Blockchain(raw[:idx]), nil
}
