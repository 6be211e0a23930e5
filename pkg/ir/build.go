package ir

import (
	"github.com/pkg/errors"
)

// Builder constructs a Module function by function, maintaining a cursor
// (current function, current block) that refuses to emit into a block
// after its terminator.
type Builder struct {
	module    *Module
	currentFn *Function
	currentBl *BasicBlock
}

func NewBuilder(moduleName string) *Builder {
	return &Builder{module: &Module{Name: moduleName}}
}

// Module returns the module under construction.
func (b *Builder) Module() *Module { return b.module }

// CreateFunction starts a new function and makes it the cursor target.
// Temp and label ids reset per function.
func (b *Builder) CreateFunction(name string, retType Type, isExternal, isVararg bool) *Function {
	fn := &Function{
		Name:       name,
		ReturnType: retType,
		IsExternal: isExternal,
		IsVararg:   isVararg,
	}
	b.module.Functions = append(b.module.Functions, fn)
	b.currentFn = fn
	b.currentBl = nil
	return fn
}

// AddParameter appends a parameter to the current function and returns the
// Temp that names it; parameter temps occupy the lowest ids.
func (b *Builder) AddParameter(typ Type) Temp {
	id := b.newTemp()
	b.currentFn.Parameters = append(b.currentFn.Parameters, Param{ID: id, Typ: typ})
	return Temp{ID: id, Typ: typ}
}

// CreateBlock appends a new basic block to the current function and makes
// it the cursor target. label is advisory only; blocks are addressed by
// LabelID.
func (b *Builder) CreateBlock(_ string) *BasicBlock {
	blk := &BasicBlock{ID: b.newLabel()}
	b.currentFn.Blocks = append(b.currentFn.Blocks, blk)
	b.currentBl = blk
	return blk
}

// SetCursor moves the insertion point to an existing block.
func (b *Builder) SetCursor(blk *BasicBlock) { b.currentBl = blk }

// CurrentBlockHasTerminator reports whether the cursor's block already has
// a terminator and can no longer accept instructions.
func (b *Builder) CurrentBlockHasTerminator() bool {
	return b.currentBl != nil && b.currentBl.HasTerminator()
}

func (b *Builder) emit(inst Inst) error {
	if b.currentBl == nil {
		return errors.New("ir: no current block")
	}
	if b.currentBl.HasTerminator() {
		return errors.Errorf("ir: block %v already terminated", b.currentBl.ID)
	}
	b.currentBl.Instructions = append(b.currentBl.Instructions, inst)
	return nil
}

func (b *Builder) terminate(t Terminator) error {
	if b.currentBl == nil {
		return errors.New("ir: no current block")
	}
	if b.currentBl.HasTerminator() {
		return errors.Errorf("ir: block %v already terminated", b.currentBl.ID)
	}
	b.currentBl.Term = t
	return nil
}

func (b *Builder) newTemp() TempID {
	id := b.currentFn.nextTemp
	b.currentFn.nextTemp++
	return id
}

func (b *Builder) newLabel() LabelID {
	id := b.currentFn.nextLabel
	b.currentFn.nextLabel++
	return id
}

// NewTemp allocates a fresh temp of the given type without defining it;
// callers must follow up with an instruction that assigns it as Result.
func (b *Builder) NewTemp(typ Type) Temp {
	return Temp{ID: b.newTemp(), Typ: typ}
}

// NewLabel allocates a label id for forward references before the block
// that will carry it exists.
func (b *Builder) NewLabel() LabelID {
	return b.newLabel()
}

func (b *Builder) BuildBinary(op BinaryOp, lhs, rhs Value, resultType Type) (Temp, error) {
	res := Temp{ID: b.newTemp(), Typ: resultType}
	return res, b.emit(Binary{Result: res, Op: op, Lhs: lhs, Rhs: rhs})
}

func (b *Builder) BuildUnary(op UnaryOp, operand Value, resultType Type) (Temp, error) {
	res := Temp{ID: b.newTemp(), Typ: resultType}
	return res, b.emit(Unary{Result: res, Op: op, Operand: operand})
}

func (b *Builder) BuildLoad(ptr Value, resultType Type) (Temp, error) {
	res := Temp{ID: b.newTemp(), Typ: resultType}
	return res, b.emit(Load{Result: res, Ptr: ptr})
}

func (b *Builder) BuildStore(value, ptr Value) error {
	return b.emit(Store{Value: value, Ptr: ptr})
}

func (b *Builder) BuildAlloca(allocType Type, count Value) (Temp, error) {
	res := Temp{ID: b.newTemp(), Typ: PtrType{Elem: allocType}}
	return res, b.emit(Alloca{Result: res, AllocType: allocType, Count: count})
}

// BuildPointerOffset is the builder-level GetElementPtr entry point
// for a Load/Store on an aggregate element.
func (b *Builder) BuildPointerOffset(ptr Value, indices []Value, resultType Type) (Temp, error) {
	res := Temp{ID: b.newTemp(), Typ: resultType}
	return res, b.emit(GetElementPtr{Result: res, Ptr: ptr, Indices: indices})
}

// BuildCall returns a non-ok Temp iff the callee's return type is void.
func (b *Builder) BuildCall(callee Value, args []Value, resultType Type) (Temp, bool, error) {
	_, isVoid := resultType.(VoidType)
	call := Call{Callee: callee, Args: args, HasResult: !isVoid}
	if isVoid {
		return Temp{}, false, b.emit(call)
	}
	res := Temp{ID: b.newTemp(), Typ: resultType}
	call.Result = res
	return res, true, b.emit(call)
}

func (b *Builder) BuildCast(value Value, targetType Type) (Temp, error) {
	res := Temp{ID: b.newTemp(), Typ: targetType}
	return res, b.emit(Cast{Result: res, Value: value, TargetType: targetType})
}

func (b *Builder) BuildSelect(cond, trueVal, falseVal Value, resultType Type) (Temp, error) {
	res := Temp{ID: b.newTemp(), Typ: resultType}
	return res, b.emit(Select{Result: res, Cond: cond, TrueVal: trueVal, FalseVal: falseVal})
}

func (b *Builder) BuildPhi(resultType Type, incoming []PhiIncoming) (Temp, error) {
	res := Temp{ID: b.newTemp(), Typ: resultType}
	return res, b.emit(Phi{Result: res, Incoming: incoming})
}

func (b *Builder) BuildInlineAsm(assembly string) error {
	return b.emit(InlineAsm{Assembly: assembly})
}

func (b *Builder) BuildComment(text string) error {
	return b.emit(Comment{Text: text})
}

func (b *Builder) BuildReturn(value Value) error {
	if value == nil {
		return b.terminate(Return{HasValue: false})
	}
	return b.terminate(Return{Value: value, HasValue: true})
}

func (b *Builder) BuildBranch(target LabelID) error {
	return b.terminate(Branch{Target: target})
}

func (b *Builder) BuildBranchCond(cond Value, trueLabel, falseLabel LabelID) error {
	return b.terminate(BranchCond{Cond: cond, TrueLabel: trueLabel, FalseLabel: falseLabel})
}

// FinishFunction validates that every block of the current function ends
// in a terminator and clears the cursor.
func (b *Builder) FinishFunction() error {
	for _, blk := range b.currentFn.Blocks {
		if !blk.HasTerminator() {
			return errors.Errorf("ir: function %q block %v has no terminator", b.currentFn.Name, blk.ID)
		}
	}
	b.currentFn = nil
	b.currentBl = nil
	return nil
}

// AddGlobal registers a module-level global.
func (b *Builder) AddGlobal(name string, typ Type, initializer Value, linkage Linkage) *GlobalVariable {
	g := &GlobalVariable{Name: name, Typ: typ, Initializer: initializer, Linkage: linkage}
	b.module.Globals = append(b.module.Globals, g)
	return g
}
