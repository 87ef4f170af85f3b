package db

import (
	"database/sql"
	"fmt"
	"math/big"

	"github.com/russross/meddler"
)

func init() {
	// Register custom meddler converter for arbitrary precision amounts
	meddler.Register("amount", AmountMeddler{})
}

// AmountMeddler handles conversion between *big.Int and a decimal string column.
// Monetary amounts are chain-native fine units and must never round-trip
// through floating point.
type AmountMeddler struct{}

func (a AmountMeddler) PreRead(fieldAddr interface{}) (scanTarget interface{}, err error) {
	// Use sql.NullString to handle NULL values
	return new(sql.NullString), nil
}

func (a AmountMeddler) PostRead(fieldAddr, scanTarget interface{}) error {
	ns, ok := scanTarget.(*sql.NullString)
	if !ok {
		return fmt.Errorf("expected *sql.NullString, got %T", scanTarget)
	}

	ptr, ok := fieldAddr.(**big.Int)
	if !ok {
		return fmt.Errorf("expected **big.Int, got %T", fieldAddr)
	}

	if !ns.Valid {
		*ptr = nil
		return nil
	}

	amount, ok := new(big.Int).SetString(ns.String, 10)
	if !ok {
		return fmt.Errorf("invalid amount in database: %q", ns.String)
	}

	*ptr = amount
	return nil
}

func (a AmountMeddler) PreWrite(field interface{}) (saveValue interface{}, err error) {
	amount, ok := field.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("expected *big.Int, got %T", field)
	}

	if amount == nil {
		return nil, nil
	}

	return amount.String(), nil
}
