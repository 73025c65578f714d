// Package access stores the contract's role holders and the collateral
// whitelist. The engine receives an Authority per transaction instead of
// reading role keys ad hoc.
package access

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/prophetlabs/prophetd/internal/domain"
	"github.com/prophetlabs/prophetd/internal/ledger"
)

// Role names the three single-holder roles.
type Role string

const (
	RoleSuperAdmin Role = "superAdmin"
	RoleAdmin      Role = "admin"
	RoleJudge      Role = "judge"
)

func (r Role) prefix() (byte, error) {
	switch r {
	case RoleSuperAdmin:
		return ledger.PrefixSuperAdmin, nil
	case RoleAdmin:
		return ledger.PrefixAdmin, nil
	case RoleJudge:
		return ledger.PrefixJudge, nil
	default:
		return 0, fmt.Errorf("access: unknown role %q", string(r))
	}
}

// Authority reads and writes role state through one ledger session.
type Authority struct {
	s *ledger.Session
}

// New binds an Authority to a session.
func New(s *ledger.Session) *Authority {
	return &Authority{s: s}
}

// Seed assigns all three roles to owner. Used once at deploy.
func (a *Authority) Seed(owner common.Address) error {
	for _, role := range []Role{RoleSuperAdmin, RoleAdmin, RoleJudge} {
		if err := a.SetHolder(role, owner); err != nil {
			return err
		}
	}
	return nil
}

// Holder returns the current holder of role.
func (a *Authority) Holder(role Role) (common.Address, error) {
	p, err := role.prefix()
	if err != nil {
		return common.Address{}, err
	}
	raw, err := a.s.Get(ledger.Key(p))
	if err == ledger.ErrNotFound {
		return common.Address{}, fmt.Errorf("access: role %s unset: %w", role, domain.ErrNotFound)
	}
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(raw), nil
}

// SetHolder replaces the holder of role.
func (a *Authority) SetHolder(role Role, addr common.Address) error {
	p, err := role.prefix()
	if err != nil {
		return err
	}
	a.s.Put(ledger.Key(p), addr.Bytes())
	return nil
}

// HasRole reports whether caller currently holds role.
func (a *Authority) HasRole(caller common.Address, role Role) (bool, error) {
	holder, err := a.Holder(role)
	if err != nil {
		return false, err
	}
	return holder == caller, nil
}

// Require fails with ErrUnauthorized unless caller holds role.
func (a *Authority) Require(caller common.Address, role Role) error {
	ok, err := a.HasRole(caller, role)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("access: %s needs role %s: %w", caller, role, domain.ErrUnauthorized)
	}
	return nil
}

// Whitelisted reports whether asset is an accepted collateral token.
func (a *Authority) Whitelisted(asset common.Address) (bool, error) {
	return a.s.Has(ledger.Key(ledger.PrefixWhitelist, asset.Bytes()))
}

// AddWhitelist accepts asset as collateral for new propositions.
func (a *Authority) AddWhitelist(asset common.Address) {
	a.s.Put(ledger.Key(ledger.PrefixWhitelist, asset.Bytes()), []byte{1})
}

// RemoveWhitelist stops accepting asset for new propositions. Existing
// markets keep their collateral.
func (a *Authority) RemoveWhitelist(asset common.Address) {
	a.s.Delete(ledger.Key(ledger.PrefixWhitelist, asset.Bytes()))
}

// Whitelist lists the accepted collateral assets in key order.
func (a *Authority) Whitelist() ([]common.Address, error) {
	prefix := ledger.Key(ledger.PrefixWhitelist)
	var out []common.Address
	err := a.s.Iterate(prefix, func(key, _ []byte) bool {
		out = append(out, common.BytesToAddress(key[len(prefix):]))
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("access: whitelist scan: %w", err)
	}
	return out, nil
}
