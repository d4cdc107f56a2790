package ledger

import (
	"sync"

	"github.com/fortiblox/savefi/pkg/svm/programs/compute_budget"
	"github.com/fortiblox/savefi/pkg/svm/programs/savefi"
	"github.com/fortiblox/savefi/pkg/svm/programs/system"
	"github.com/fortiblox/savefi/pkg/svm/programs/token"
	"github.com/fortiblox/savefi/pkg/svm/syscall"
	"github.com/fortiblox/savefi/pkg/types"
)

// ProgramExecutor runs one instruction addressed to a program.
type ProgramExecutor interface {
	Execute(ctx *syscall.ExecutionContext, ix *types.Instruction) error
}

type ProgramExecutorFunc func(ctx *syscall.ExecutionContext, ix *types.Instruction) error

func (f ProgramExecutorFunc) Execute(ctx *syscall.ExecutionContext, ix *types.Instruction) error {
	return f(ctx, ix)
}

// InstructionNamer is implemented by programs that can name an instruction
// from its data.
type InstructionNamer interface {
	InstructionName(data []byte) (string, error)
}

type registered struct {
	name string
	exec ProgramExecutor
}

// ProgramRegistry maps program ids to executors.
type ProgramRegistry struct {
	mu   sync.RWMutex
	byID map[types.Pubkey]registered
}

func NewProgramRegistry() *ProgramRegistry {
	return &ProgramRegistry{byID: make(map[types.Pubkey]registered)}
}

// Register adds or replaces the program at id.
func (r *ProgramRegistry) Register(id types.Pubkey, name string, exec ProgramExecutor) {
	r.mu.Lock()
	r.byID[id] = registered{name: name, exec: exec}
	r.mu.Unlock()
}

func (r *ProgramRegistry) lookup(id types.Pubkey) (registered, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	return p, ok
}

func (r *ProgramRegistry) Get(id types.Pubkey) (ProgramExecutor, bool) {
	p, ok := r.lookup(id)
	return p.exec, ok
}

// Name is the registered name of id, or its base58 form.
func (r *ProgramRegistry) Name(id types.Pubkey) string {
	if p, ok := r.lookup(id); ok {
		return p.name
	}
	return id.String()
}

// InstructionName names ix for history and metrics. Programs that cannot
// name the data are reported by program name.
func (r *ProgramRegistry) InstructionName(ix *types.Instruction) string {
	p, ok := r.lookup(ix.ProgramID)
	if !ok {
		return ix.ProgramID.String()
	}
	if namer, ok := p.exec.(InstructionNamer); ok {
		if name, err := namer.InstructionName(ix.Data); err == nil {
			return name
		}
	}
	return p.name
}

// RegisterNativePrograms installs system, token and compute budget, plus
// vaults when given.
func RegisterNativePrograms(r *ProgramRegistry, vaults *savefi.Program) {
	r.Register(types.SystemProgramID, "system", system.New())
	r.Register(types.TokenProgramID, "token", token.New())
	r.Register(compute_budget.ProgramID, "compute_budget", compute_budget.New())
	if vaults != nil {
		r.Register(vaults.GetProgramID(), "savefi", vaults)
	}
}
