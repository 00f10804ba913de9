//go:build !notrustedaddresscheck

package wallet

import (
	"fmt"

	"cct/internal/account"
	"cct/internal/money"
)

// validate enforces that (exchange, keyName, currency) has a trusted entry
// on file whose address (and tag, when the entry specifies one) matches the
// candidate exactly.
func validate(book *Book, exchange account.ExchangeName, keyName string, currency money.CurrencyCode, address, tag string) error {
	e, ok := book.lookup(exchange, keyName, currency)
	if !ok {
		return fmt.Errorf("%w: %s/%s/%s", ErrUntrusted, exchange, keyName, currency)
	}
	if e.Address != address {
		return fmt.Errorf("%w: %s/%s/%s address mismatch", ErrUntrusted, exchange, keyName, currency)
	}
	if e.Tag != "" && e.Tag != tag {
		return fmt.Errorf("%w: %s/%s/%s tag mismatch", ErrUntrusted, exchange, keyName, currency)
	}
	return nil
}
