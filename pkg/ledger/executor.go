package ledger

import (
	"bytes"
	"fmt"

	"github.com/fortiblox/savefi/pkg/svm/programs/compute_budget"
	"github.com/fortiblox/savefi/pkg/svm/syscall"
	"github.com/fortiblox/savefi/pkg/types"
)

// loadAccounts builds one shared AccountInfo per message key. Instructions
// of the transaction all see the same values.
func (l *Ledger) loadAccounts(msg *types.Message) ([]*syscall.AccountInfo, error) {
	infos := make([]*syscall.AccountInfo, len(msg.AccountKeys))
	for i, pubkey := range msg.AccountKeys {
		acc, err := l.db.Get(pubkey)
		if err != nil {
			return nil, fmt.Errorf("ledger: load %s: %w", pubkey, err)
		}
		infos[i] = syscall.NewAccountInfo(pubkey, acc, msg.IsSigner(i), msg.IsWritable(i))
	}
	return infos, nil
}

// execute runs every instruction of tx. It returns the modified accounts to
// commit, the instruction names, and the first instruction failure.
func (l *Ledger) execute(tx *types.Transaction, now int64) (*types.TransactionResult, []types.AccountRef, []string, error) {
	result := &types.TransactionResult{}
	msg := &tx.Message

	infos, err := l.loadAccounts(msg)
	if err != nil {
		return result, nil, nil, err
	}
	originals := make([]*types.Account, len(infos))
	for i, info := range infos {
		originals[i] = info.ToAccount()
	}

	remaining, err := l.computeBudget(msg)
	if err != nil {
		return result, nil, nil, err
	}

	names := make([]string, 0, len(msg.Instructions))
	for i := range msg.Instructions {
		compiled := &msg.Instructions[i]
		ix, err := msg.Decompile(compiled)
		if err != nil {
			return result, nil, names, &InstructionError{Index: i, Err: err}
		}
		name := l.registry.InstructionName(ix)
		names = append(names, name)

		consumed, err := l.executeInstruction(ix, compiled, infos, now, remaining, result)
		result.ComputeUnits += types.ComputeUnits(consumed)
		remaining -= min(consumed, remaining)
		if err != nil {
			ixErr := &InstructionError{Index: i, ProgramID: ix.ProgramID, Err: err}
			l.metrics.RecordInstruction(name, ixErr.ErrorName())
			return result, nil, names, ixErr
		}
		l.metrics.RecordInstruction(name, "")
	}

	var refs []types.AccountRef
	for i, info := range infos {
		acc := info.ToAccount()
		if !acc.Equal(originals[i]) {
			refs = append(refs, types.AccountRef{Pubkey: info.Pubkey, Account: acc})
			result.AccountDeltas = append(result.AccountDeltas, types.AccountDelta{
				Pubkey:     info.Pubkey,
				OldAccount: originals[i],
				NewAccount: acc,
			})
		}
	}
	return result, refs, names, nil
}

// computeBudget applies the transaction's compute budget instructions and
// returns the units the whole transaction may consume.
func (l *Ledger) computeBudget(msg *types.Message) (uint64, error) {
	budget := compute_budget.NewBudget()
	for i, compiled := range msg.Instructions {
		if int(compiled.ProgramIDIndex) >= len(msg.AccountKeys) ||
			msg.AccountKeys[compiled.ProgramIDIndex] != compute_budget.ProgramID {
			continue
		}
		if err := budget.Apply(compiled.Data); err != nil {
			return 0, &InstructionError{Index: i, ProgramID: compute_budget.ProgramID, Err: err}
		}
	}
	return budget.Limit(len(msg.Instructions), l.computeUnits), nil
}

// executeInstruction runs one instruction and checks that it left read-only
// accounts alone and conserved lamports across the accounts it touched.
func (l *Ledger) executeInstruction(ix *types.Instruction, compiled *types.CompiledInstruction, infos []*syscall.AccountInfo, now int64, units uint64, result *types.TransactionResult) (uint64, error) {
	executor, ok := l.registry.Get(ix.ProgramID)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrProgramNotFound, ix.ProgramID)
	}

	ixAccounts := make([]*syscall.AccountInfo, len(compiled.AccountIndices))
	touched := make(map[int]before, len(compiled.AccountIndices))
	for j, idx := range compiled.AccountIndices {
		info := infos[idx]
		ixAccounts[j] = info
		if _, ok := touched[int(idx)]; !ok {
			touched[int(idx)] = snapshot(info)
		}
	}

	ctx := syscall.NewExecutionContext(ix.ProgramID, ixAccounts, ix.Data, units)
	ctx.UnixTimestamp = now

	err := executor.Execute(ctx, ix)
	result.Logs = append(result.Logs, ctx.GetLogs()...)
	consumed := ctx.GetComputeUnitsConsumed()
	if err != nil {
		return consumed, err
	}
	if _, data := ctx.GetReturnData(); len(data) > 0 {
		result.ReturnData = data
	}

	var sumBefore, sumAfter uint64
	for idx, prev := range touched {
		info := infos[idx]
		if !info.IsWritable && prev.changed(info) {
			return consumed, fmt.Errorf("%w: %s", ErrReadOnlyModified, info.Pubkey)
		}
		sumBefore += prev.lamports
		sumAfter += *info.Lamports
	}
	if sumBefore != sumAfter {
		return consumed, fmt.Errorf("%w: %d before, %d after", ErrUnbalanced, sumBefore, sumAfter)
	}
	return consumed, nil
}

type before struct {
	lamports uint64
	owner    types.Pubkey
	data     []byte
}

func snapshot(info *syscall.AccountInfo) before {
	return before{
		lamports: *info.Lamports,
		owner:    info.Owner,
		data:     bytes.Clone(info.Data),
	}
}

func (b before) changed(info *syscall.AccountInfo) bool {
	return b.lamports != *info.Lamports || b.owner != info.Owner || !bytes.Equal(b.data, info.Data)
}
