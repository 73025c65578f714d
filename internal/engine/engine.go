// Package engine implements the settlement and market-making core: the
// proposition lifecycle, deposit/redeem, the constant-product pool, and the
// two-phase liquidity protocol. Every top-level call runs inside one ledger
// session and either commits completely or leaves no trace.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/prophetlabs/prophetd/internal/access"
	"github.com/prophetlabs/prophetd/internal/collateral"
	"github.com/prophetlabs/prophetd/internal/domain"
	"github.com/prophetlabs/prophetd/internal/ledger"
	"github.com/prophetlabs/prophetd/internal/token"
)

// Reentrant is the narrow surface a payment hook may call back into. All of
// it is reentrancy-guarded, so calls from inside a payout fail with
// ErrReentrant instead of interleaving reserve mutations.
type Reentrant interface {
	Buy(ctx context.Context, from common.Address, tokenIn domain.TokenID, amountIn, minAmountOut *big.Int, deadlineMS int64) (*big.Int, error)
	RemoveLiquidity(ctx context.Context, from common.Address, liquidityTokenID domain.TokenID, amount, minTrue, minFalse *big.Int, deadlineMS int64) error
}

// PaymentHook is invoked when the engine pays claim or liquidity tokens out
// to a registered contract-like account, mirroring the recipient payment
// callbacks of the host token standard. A hook error aborts the whole
// transaction.
type PaymentHook func(ctx context.Context, call Reentrant, from common.Address, id domain.TokenID, amount *big.Int) error

// Engine owns the contract state and serializes top-level transactions.
type Engine struct {
	mu     sync.Mutex
	store  ledger.Store
	clock  domain.Clock
	sink   domain.EventSink
	self   common.Address
	hooks  map[common.Address]PaymentHook
	logger *slog.Logger
}

// Options configures optional Engine collaborators.
type Options struct {
	Clock  domain.Clock
	Sink   domain.EventSink
	Logger *slog.Logger
}

// New creates an Engine over store. self is the contract's own account, the
// holder of pool reserves and staged inbound tokens.
func New(store ledger.Store, self common.Address, opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = domain.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		store:  store,
		clock:  opts.Clock,
		sink:   opts.Sink,
		self:   self,
		hooks:  make(map[common.Address]PaymentHook),
		logger: opts.Logger.With(slog.String("component", "engine")),
	}
}

// Self returns the contract account.
func (e *Engine) Self() common.Address { return e.self }

// RegisterHook installs a payment hook for a contract-like recipient.
func (e *Engine) RegisterHook(addr common.Address, hook PaymentHook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hooks[addr] = hook
}

// callCtx carries the per-transaction state: the session overlay, the
// session-bound registry/authority/collateral views, and the event buffer
// published only after commit.
type callCtx struct {
	eng    *Engine
	sess   *ledger.Session
	reg    *token.Registry
	auth   *access.Authority
	bank   *collateral.Book
	events []domain.Event
}

func (e *Engine) newCall() *callCtx {
	sess := ledger.NewSession(e.store)
	return &callCtx{
		eng:  e,
		sess: sess,
		reg:  token.NewRegistry(sess),
		auth: access.New(sess),
		bank: collateral.NewBook(sess),
	}
}

func (c *callCtx) emit(ev domain.Event) { c.events = append(c.events, ev) }

// runTx executes fn inside a fresh session. The session commits only when fn
// succeeds; on any error the overlay is dropped, so no storage mutation, no
// event, and no stuck reentrancy flag survives a failed call.
func (e *Engine) runTx(ctx context.Context, fn func(c *callCtx) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c := e.newCall()
	if err := fn(c); err != nil {
		return err
	}
	if err := c.sess.Commit(); err != nil {
		return err
	}
	if e.sink != nil {
		for _, ev := range c.events {
			e.sink.Emit(ctx, ev)
		}
	}
	return nil
}

// enter sets the reentrancy flag for the remainder of the call and returns
// the release that clears it. A set flag means a mutating call is already in
// flight within this transaction.
func (c *callCtx) enter() (func(), error) {
	key := ledger.Key(ledger.PrefixReentrancy)
	held, err := c.sess.Has(key)
	if err != nil {
		return nil, err
	}
	if held {
		return nil, domain.ErrReentrant
	}
	c.sess.Put(key, []byte{1})
	return func() { c.sess.Delete(key) }, nil
}

// mint credits freshly created tokens and records the transfer-from-nothing.
func (c *callCtx) mint(owner common.Address, id domain.TokenID, amount *big.Int) error {
	if err := c.reg.Mint(owner, id, amount); err != nil {
		return err
	}
	c.emit(domain.TransferEvent{To: owner, TokenID: id, Amount: amount})
	return nil
}

// burn destroys tokens held by owner and records the transfer-to-nothing.
func (c *callCtx) burn(owner common.Address, id domain.TokenID, amount *big.Int) error {
	if err := c.reg.Burn(owner, id, amount); err != nil {
		return err
	}
	c.emit(domain.TransferEvent{From: owner, TokenID: id, Amount: amount})
	return nil
}

// move transfers between accounts and records it.
func (c *callCtx) move(from, to common.Address, id domain.TokenID, amount *big.Int) error {
	if err := c.reg.Transfer(from, to, id, amount); err != nil {
		return err
	}
	c.emit(domain.TransferEvent{From: from, To: to, TokenID: id, Amount: amount})
	return nil
}

// transferOut pays tokens from the contract's own holding to a recipient and
// fires the recipient's payment hook if one is registered. The hook runs
// inside the same transaction, so anything it touches commits or rolls back
// with the outer call.
func (c *callCtx) transferOut(ctx context.Context, to common.Address, id domain.TokenID, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("engine: pay out %s of token %s: %w", amount, id, domain.ErrInvalidAmount)
	}
	if err := c.move(c.eng.self, to, id, amount); err != nil {
		return fmt.Errorf("engine: %w: %v", domain.ErrTransferFailed, err)
	}
	if hook := c.eng.hooks[to]; hook != nil {
		if err := hook(ctx, (*reentrantCall)(c), c.eng.self, id, amount); err != nil {
			return fmt.Errorf("engine: payment hook for %s: %w", to, err)
		}
	}
	return nil
}

// reentrantCall adapts a live callCtx to the Reentrant surface handed to
// payment hooks. The guarded entry points re-check the flag and fail.
type reentrantCall callCtx

func (rc *reentrantCall) Buy(ctx context.Context, from common.Address, tokenIn domain.TokenID, amountIn, minAmountOut *big.Int, deadlineMS int64) (*big.Int, error) {
	return rc.eng.buy(ctx, (*callCtx)(rc), from, tokenIn, amountIn, minAmountOut, deadlineMS)
}

func (rc *reentrantCall) RemoveLiquidity(ctx context.Context, from common.Address, liquidityTokenID domain.TokenID, amount, minTrue, minFalse *big.Int, deadlineMS int64) error {
	return rc.eng.removeLiquidity(ctx, (*callCtx)(rc), from, liquidityTokenID, amount, minTrue, minFalse, deadlineMS)
}

// Deploy seeds the three roles to the deployer and consumes token id zero,
// so every real token has a nonzero id. It fails once deployed.
func (e *Engine) Deploy(ctx context.Context, deployer common.Address) error {
	return e.runTx(ctx, func(c *callCtx) error {
		if _, err := c.sess.Get(ledger.Key(ledger.PrefixTokenCounter)); err == nil {
			return errors.New("engine: already deployed")
		} else if err != ledger.ErrNotFound {
			return err
		}
		if err := c.auth.Seed(deployer); err != nil {
			return err
		}
		if _, err := c.reg.NewTokenID(); err != nil {
			return err
		}
		e.logger.InfoContext(ctx, "contract deployed", slog.String("deployer", deployer.Hex()))
		return nil
	})
}

// Execute runs an ordered batch of inbound transfers as one atomic
// transaction. Claim and liquidity tokens are moved into the contract
// account before their instruction is dispatched; collateral is pulled
// through the collateral book. A batch that leaves a staged first leg
// without its second is rejected rather than committed.
func (e *Engine) Execute(ctx context.Context, caller common.Address, transfers []domain.Transfer) error {
	if len(transfers) == 0 {
		return fmt.Errorf("engine: empty transfer batch: %w", domain.ErrInvalidAmount)
	}
	return e.runTx(ctx, func(c *callCtx) error {
		for _, t := range transfers {
			if t.Amount == nil || t.Amount.Sign() <= 0 {
				return fmt.Errorf("engine: inbound amount: %w", domain.ErrInvalidAmount)
			}
			if t.From != caller {
				return fmt.Errorf("engine: transfer from %s submitted by %s: %w", t.From, caller, domain.ErrUnauthorized)
			}
			if err := e.dispatch(ctx, c, t); err != nil {
				return err
			}
		}
		return c.requireNoStagedResidue()
	})
}

func (e *Engine) dispatch(ctx context.Context, c *callCtx, t domain.Transfer) error {
	switch instr := t.Instruction.(type) {
	case domain.DepositInstruction:
		if err := c.bank.Transfer(ctx, t.Asset, t.From, e.self, t.Amount); err != nil {
			return fmt.Errorf("engine: pull collateral: %w", err)
		}
		return e.deposit(c, t.From, t.Asset, instr.LiquidityTokenID, t.Amount)
	case domain.RedeemInstruction:
		if err := c.move(t.From, e.self, t.TokenID, t.Amount); err != nil {
			return err
		}
		return e.redeem(ctx, c, t.From, t.TokenID, t.Amount)
	case domain.WinnerRedeemInstruction:
		if err := c.move(t.From, e.self, t.TokenID, t.Amount); err != nil {
			return err
		}
		return e.winnerRedeem(ctx, c, t.From, t.TokenID, t.Amount)
	case domain.BuyInstruction:
		if err := c.move(t.From, e.self, t.TokenID, t.Amount); err != nil {
			return err
		}
		_, err := e.buy(ctx, c, t.From, t.TokenID, t.Amount, instr.MinAmountOut, instr.DeadlineMS)
		return err
	case domain.AddLiquidityInstruction:
		if err := c.move(t.From, e.self, t.TokenID, t.Amount); err != nil {
			return err
		}
		return e.addLiquidity(ctx, c, t.From, t.TokenID, t.Amount, instr.MinSelf, instr.MinOther, instr.DeadlineMS)
	case domain.RemoveLiquidityInstruction:
		if err := c.move(t.From, e.self, t.TokenID, t.Amount); err != nil {
			return err
		}
		return e.removeLiquidity(ctx, c, t.From, t.TokenID, t.Amount, instr.MinTrue, instr.MinFalse, instr.DeadlineMS)
	default:
		return fmt.Errorf("engine: %T: %w", t.Instruction, domain.ErrUnknownInstruction)
	}
}

// requireNoStagedResidue rejects a batch whose first leg staged tokens that
// no second leg consumed. The original contract let such amounts strand;
// refusing to commit the batch closes that gap.
func (c *callCtx) requireNoStagedResidue() error {
	var leftover []byte
	if err := c.sess.Iterate(ledger.Key(ledger.PrefixStaged), func(key, _ []byte) bool {
		leftover = key
		return false
	}); err != nil {
		return err
	}
	if leftover != nil {
		return fmt.Errorf("engine: staged leg without its counterpart: %w", domain.ErrIncompleteTransfer)
	}
	return nil
}

// nowMS reads the host clock in epoch milliseconds.
func (e *Engine) nowMS() int64 { return domain.NowMS(e.clock) }

// ChangeRole reassigns a role. Only the super-admin may do this.
func (e *Engine) ChangeRole(ctx context.Context, caller common.Address, role access.Role, holder common.Address) error {
	return e.runTx(ctx, func(c *callCtx) error {
		if err := c.auth.Require(caller, access.RoleSuperAdmin); err != nil {
			return err
		}
		return c.auth.SetHolder(role, holder)
	})
}

// AddWhitelist accepts a collateral asset for new propositions (super-admin).
func (e *Engine) AddWhitelist(ctx context.Context, caller, asset common.Address) error {
	return e.runTx(ctx, func(c *callCtx) error {
		if err := c.auth.Require(caller, access.RoleSuperAdmin); err != nil {
			return err
		}
		c.auth.AddWhitelist(asset)
		return nil
	})
}

// RemoveWhitelist removes a collateral asset from the whitelist (super-admin).
func (e *Engine) RemoveWhitelist(ctx context.Context, caller, asset common.Address) error {
	return e.runTx(ctx, func(c *callCtx) error {
		if err := c.auth.Require(caller, access.RoleSuperAdmin); err != nil {
			return err
		}
		c.auth.RemoveWhitelist(asset)
		return nil
	})
}

// Recover is the privileged pass-through transfer of collateral held by the
// contract account (super-admin).
func (e *Engine) Recover(ctx context.Context, caller common.Address, asset, to common.Address, amount *big.Int) error {
	return e.runTx(ctx, func(c *callCtx) error {
		if err := c.auth.Require(caller, access.RoleSuperAdmin); err != nil {
			return err
		}
		if err := c.bank.Transfer(ctx, asset, e.self, to, amount); err != nil {
			return fmt.Errorf("engine: %w: %v", domain.ErrTransferFailed, err)
		}
		return nil
	})
}

// RecoverToken is the privileged pass-through transfer of claim or liquidity
// tokens held by the contract account (super-admin). The recipient's payment
// hook fires as it would for any contract payout.
func (e *Engine) RecoverToken(ctx context.Context, caller common.Address, to common.Address, id domain.TokenID, amount *big.Int) error {
	return e.runTx(ctx, func(c *callCtx) error {
		if err := c.auth.Require(caller, access.RoleSuperAdmin); err != nil {
			return err
		}
		return c.transferOut(ctx, to, id, amount)
	})
}

// MintCollateral credits the in-process collateral book (super-admin). It
// stands in for acquiring the asset on its own contract.
func (e *Engine) MintCollateral(ctx context.Context, caller common.Address, asset, to common.Address, amount *big.Int) error {
	return e.runTx(ctx, func(c *callCtx) error {
		if err := c.auth.Require(caller, access.RoleSuperAdmin); err != nil {
			return err
		}
		return c.bank.Credit(asset, to, amount)
	})
}
