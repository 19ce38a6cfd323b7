package main

import (
	"fmt"

	"tinygo.org/x/go-llvm"
)

// JITCompiler lowers an analyzed AST to LLVM IR and runs it with MCJIT.
// Nested procedures become flat functions taking one pointer-to-int32
// parameter per free variable; all identifier resolution at emission time
// goes through the per-function locals table.
type JITCompiler struct {
	ctx     llvm.Context
	module  llvm.Module
	builder llvm.Builder
	tyinfo  llvm.Value

	i32Ty  llvm.Type
	i64Ty  llvm.Type
	ptrTy  llvm.Type
	voidTy llvm.Type

	// name -> stack cell (alloca or pointer parameter) of the function
	// currently being emitted
	locals map[string]llvm.Value
}

// Run compiles the analyzed AST into a native module and executes its main
// function. No compilation state survives the call.
func Run(ast *Node) error {
	jit := newJITCompiler()
	if err := jit.compile(ast); err != nil {
		jit.dispose()
		return err
	}
	return jit.exec()
}

func newJITCompiler() *JITCompiler {
	ctx := llvm.NewContext()
	c := &JITCompiler{
		ctx:     ctx,
		module:  ctx.NewModule("pl0"),
		builder: ctx.NewBuilder(),
		i32Ty:   ctx.Int32Type(),
		i64Ty:   ctx.Int64Type(),
		ptrTy:   llvm.PointerType(ctx.Int8Type(), 0),
		voidTy:  ctx.VoidType(),
	}

	// External reference to the C++ type info for `const char *`; the
	// zero-divide throw and the landing pad clause both use it.
	c.tyinfo = llvm.AddGlobal(c.module, c.ptrTy, "_ZTIPKc")
	c.tyinfo.SetLinkage(llvm.ExternalLinkage)
	c.tyinfo.SetGlobalConstant(true)

	return c
}

func (c *JITCompiler) dispose() {
	c.builder.Dispose()
	c.module.Dispose()
	c.ctx.Dispose()
}

func (c *JITCompiler) compile(ast *Node) error {
	if err := llvm.InitializeNativeTarget(); err != nil {
		return err
	}
	if err := llvm.InitializeNativeAsmPrinter(); err != nil {
		return err
	}
	if err := c.compileLibs(); err != nil {
		return err
	}
	return c.compileProgram(ast)
}

// exec hands the module to an MCJIT execution engine and runs main. The
// engine owns the module afterwards.
func (c *JITCompiler) exec() error {
	if err := llvm.VerifyModule(c.module, llvm.ReturnStatusAction); err != nil {
		c.dispose()
		return fmt.Errorf("module verification failed: %w", err)
	}

	llvm.LinkInMCJIT()
	mainFn := c.module.NamedFunction("main")
	engine, err := llvm.NewMCJITCompiler(c.module, llvm.NewMCJITCompilerOptions())
	if err != nil {
		c.dispose()
		return fmt.Errorf("cannot create execution engine: %w", err)
	}

	engine.RunFunction(mainFn, nil)

	engine.Dispose()
	c.builder.Dispose()
	c.ctx.Dispose()
	return nil
}

// ir returns the textual IR of the module.
func (c *JITCompiler) ir() string {
	return c.module.String()
}

func (c *JITCompiler) getOrInsertFunction(name string, ft llvm.Type) llvm.Value {
	if fn := c.module.NamedFunction(name); !fn.IsNil() {
		return fn
	}
	return llvm.AddFunction(c.module, name, ft)
}

func (c *JITCompiler) verifyFunction(fn llvm.Value, name string) error {
	if err := llvm.VerifyFunction(fn, llvm.ReturnStatusAction); err != nil {
		return fmt.Errorf("generated function '%s' is invalid: %w", name, err)
	}
	return nil
}

// compileLibs emits the runtime prelude: out(i32) printing "%d\n".
func (c *JITCompiler) compileLibs() error {
	outTy := llvm.FunctionType(c.voidTy, []llvm.Type{c.i32Ty}, false)
	outFn := c.getOrInsertFunction("out", outTy)

	bb := c.ctx.AddBasicBlock(outFn, "entry")
	c.builder.SetInsertPointAtEnd(bb)

	printfTy := llvm.FunctionType(c.i32Ty, []llvm.Type{c.ptrTy}, true)
	printfFn := c.getOrInsertFunction("printf", printfTy)

	format := c.builder.CreateGlobalStringPtr("%d\n", ".printf.fmt")
	c.builder.CreateCall(printfTy, printfFn, []llvm.Value{format, outFn.Param(0)}, "")

	c.builder.CreateRetVoid()
	return c.verifyFunction(outFn, "out")
}

// compileProgram emits the program body as __pl0_start and wraps it in a
// main function whose landing pad catches anything thrown at runtime.
func (c *JITCompiler) compileProgram(ast *Node) error {
	voidFnTy := llvm.FunctionType(c.voidTy, nil, false)
	startFn := c.getOrInsertFunction("__pl0_start", voidFnTy)

	{
		bb := c.ctx.AddBasicBlock(startFn, "entry")
		c.builder.SetInsertPointAtEnd(bb)
		c.locals = map[string]llvm.Value{}

		if err := c.compileBlock(ast.Children[0]); err != nil {
			return err
		}

		c.builder.CreateRetVoid()
		if err := c.verifyFunction(startFn, "__pl0_start"); err != nil {
			return err
		}
	}

	mainFn := c.getOrInsertFunction("main", voidFnTy)

	{
		persTy := llvm.FunctionType(c.i32Ty, nil, true)
		persFn := llvm.AddFunction(c.module, "__gxx_personality_v0", persTy)
		mainFn.SetPersonality(persFn)

		entry := c.ctx.AddBasicBlock(mainFn, "entry")
		lpad := c.ctx.AddBasicBlock(mainFn, "lpad")
		catchMessage := c.ctx.AddBasicBlock(mainFn, "catch_with_message")
		catchUnknown := c.ctx.AddBasicBlock(mainFn, "catch_unknown")
		end := c.ctx.AddBasicBlock(mainFn, "end")

		c.builder.SetInsertPointAtEnd(entry)
		c.builder.CreateInvoke(voidFnTy, startFn, nil, end, lpad, "")

		c.builder.SetInsertPointAtEnd(lpad)
		excTy := c.ctx.StructType([]llvm.Type{c.ptrTy, c.i32Ty}, false)
		exc := c.builder.CreateLandingPad(excTy, 1, "exc")
		tyinfoPtr := llvm.ConstBitCast(c.tyinfo, c.ptrTy)
		exc.AddClause(tyinfoPtr)

		excPtr := c.builder.CreateExtractValue(exc, 0, "exc.ptr")
		excSel := c.builder.CreateExtractValue(exc, 1, "exc.sel")

		typeidTy := llvm.FunctionType(c.i32Ty, []llvm.Type{c.ptrTy}, false)
		typeidFn := c.getOrInsertFunction("llvm.eh.typeid.for", typeidTy)
		id := c.builder.CreateCall(typeidTy, typeidFn, []llvm.Value{tyinfoPtr}, "tid.int")

		match := c.builder.CreateICmp(llvm.IntEQ, excSel, id, "tst.int")
		c.builder.CreateCondBr(match, catchMessage, catchUnknown)

		beginCatchTy := llvm.FunctionType(c.ptrTy, []llvm.Type{c.ptrTy}, false)
		beginCatchFn := c.getOrInsertFunction("__cxa_begin_catch", beginCatchTy)
		endCatchTy := llvm.FunctionType(c.voidTy, nil, false)
		endCatchFn := c.getOrInsertFunction("__cxa_end_catch", endCatchTy)
		putsTy := llvm.FunctionType(c.i32Ty, []llvm.Type{c.ptrTy}, false)
		putsFn := c.getOrInsertFunction("puts", putsTy)

		{
			c.builder.SetInsertPointAtEnd(catchMessage)
			str := c.builder.CreateCall(beginCatchTy, beginCatchFn, []llvm.Value{excPtr}, "str")
			c.builder.CreateCall(putsTy, putsFn, []llvm.Value{str}, "")
			c.builder.CreateCall(endCatchTy, endCatchFn, nil, "")
			c.builder.CreateBr(end)
		}

		{
			c.builder.SetInsertPointAtEnd(catchUnknown)
			c.builder.CreateCall(beginCatchTy, beginCatchFn, []llvm.Value{excPtr}, "")
			str := c.builder.CreateGlobalStringPtr("unknown error...", ".str.unknown")
			c.builder.CreateCall(putsTy, putsFn, []llvm.Value{str}, "")
			c.builder.CreateCall(endCatchTy, endCatchFn, nil, "")
			c.builder.CreateBr(end)
		}

		{
			// The host process exits through the Go runtime, which never
			// flushes C stdio, so the generated code flushes before
			// returning.
			c.builder.SetInsertPointAtEnd(end)
			fflushTy := llvm.FunctionType(c.i32Ty, []llvm.Type{c.ptrTy}, false)
			fflushFn := c.getOrInsertFunction("fflush", fflushTy)
			c.builder.CreateCall(fflushTy, fflushFn, []llvm.Value{llvm.ConstPointerNull(c.ptrTy)}, "")
			c.builder.CreateRetVoid()
		}

		if err := c.verifyFunction(mainFn, "main"); err != nil {
			return err
		}
	}

	return nil
}

func (c *JITCompiler) compileBlock(n *Node) error {
	nodes := n.Children
	if err := c.compileConst(nodes[0]); err != nil {
		return err
	}
	if err := c.compileVar(nodes[1]); err != nil {
		return err
	}
	if err := c.compileProcedure(nodes[2]); err != nil {
		return err
	}
	return c.compileStatement(nodes[3])
}

// compileConst materializes each constant as an initialized stack cell so
// that constant uses go through the same lookup path as variables.
func (c *JITCompiler) compileConst(n *Node) error {
	nodes := n.Children
	for i := 0; i < len(nodes); i += 2 {
		ident := nodes[i].Token
		number := llvm.ConstIntFromString(c.i32Ty, nodes[i+1].Token, 10)

		cell := c.builder.CreateAlloca(c.i32Ty, ident)
		c.builder.CreateStore(number, cell)
		c.locals[ident] = cell
	}
	return nil
}

func (c *JITCompiler) compileVar(n *Node) error {
	for _, node := range n.Children {
		ident := node.Token
		c.locals[ident] = c.builder.CreateAlloca(c.i32Ty, ident)
	}
	return nil
}

// compileProcedure synthesizes a function per procedure with one
// pointer-to-int32 parameter per free variable of its body, in the body's
// recorded order. The caller's insertion point and locals are restored
// afterwards.
func (c *JITCompiler) compileProcedure(n *Node) error {
	nodes := n.Children
	for i := 0; i < len(nodes); i += 2 {
		ident := nodes[i].Token
		block := nodes[i+1]
		free := block.Scope.FreeVariables

		paramTypes := make([]llvm.Type, len(free))
		for j := range paramTypes {
			paramTypes[j] = c.ptrTy
		}
		fnTy := llvm.FunctionType(c.voidTy, paramTypes, false)
		fn := c.getOrInsertFunction(ident, fnTy)

		for j, name := range free {
			fn.Param(j).SetName(name)
		}

		prevBlock := c.builder.GetInsertBlock()
		prevLocals := c.locals

		c.locals = map[string]llvm.Value{}
		for j, name := range free {
			c.locals[name] = fn.Param(j)
		}

		bb := c.ctx.AddBasicBlock(fn, "entry")
		c.builder.SetInsertPointAtEnd(bb)
		if err := c.compileBlock(block); err != nil {
			return err
		}
		c.builder.CreateRetVoid()
		if err := c.verifyFunction(fn, ident); err != nil {
			return err
		}

		c.locals = prevLocals
		c.builder.SetInsertPointAtEnd(prevBlock)
	}
	return nil
}

func (c *JITCompiler) compileStatement(n *Node) error {
	if len(n.Children) == 0 {
		return nil
	}
	return c.compileSwitch(n.Children[0])
}

func (c *JITCompiler) compileSwitch(n *Node) error {
	switch n.Tag {
	case TagAssignment:
		return c.compileAssignment(n)
	case TagCall:
		return c.compileCall(n)
	case TagStatements:
		return c.compileStatements(n)
	case TagIf:
		return c.compileIf(n)
	case TagWhile:
		return c.compileWhile(n)
	case TagOut:
		return c.compileOut(n)
	default:
		return c.compileSwitch(n.Children[0])
	}
}

func (c *JITCompiler) compileSwitchValue(n *Node) (llvm.Value, error) {
	switch n.Tag {
	case TagOdd:
		return c.compileOdd(n)
	case TagCompare:
		return c.compileCompare(n)
	case TagExpression:
		return c.compileExpression(n)
	case TagIdent:
		return c.compileIdent(n)
	case TagNumber:
		return c.compileNumber(n), nil
	default:
		return c.compileSwitchValue(n.Children[0])
	}
}

func (c *JITCompiler) compileAssignment(n *Node) error {
	ident := n.Children[0].Token
	cell, ok := c.locals[ident]
	if !ok {
		return nodeErrorf(n, "'%s' is not defined...", ident)
	}

	val, err := c.compileExpression(n.Children[1])
	if err != nil {
		return err
	}
	c.builder.CreateStore(val, cell)
	return nil
}

// compileCall passes the cell of each free variable of the target block, in
// the block's recorded order, so mutations are visible to the caller.
func (c *JITCompiler) compileCall(n *Node) error {
	ident := n.Children[0].Token

	scope := closestScope(n)
	block := scope.getProcedure(ident)

	free := block.Scope.FreeVariables
	args := make([]llvm.Value, 0, len(free))
	for _, name := range free {
		cell, ok := c.locals[name]
		if !ok {
			return nodeErrorf(n, "'%s' is not defined...", name)
		}
		args = append(args, cell)
	}

	paramTypes := make([]llvm.Type, len(free))
	for j := range paramTypes {
		paramTypes[j] = c.ptrTy
	}
	fnTy := llvm.FunctionType(c.voidTy, paramTypes, false)
	fn := c.module.NamedFunction(ident)
	c.builder.CreateCall(fnTy, fn, args, "")
	return nil
}

func (c *JITCompiler) compileStatements(n *Node) error {
	for _, node := range n.Children {
		if err := c.compileStatement(node); err != nil {
			return err
		}
	}
	return nil
}

func (c *JITCompiler) compileIf(n *Node) error {
	cond, err := c.compileCondition(n.Children[0])
	if err != nil {
		return err
	}

	fn := c.builder.GetInsertBlock().Parent()
	thenBB := c.ctx.AddBasicBlock(fn, "if.then")
	endBB := c.ctx.AddBasicBlock(fn, "if.end")

	c.builder.CreateCondBr(cond, thenBB, endBB)

	c.builder.SetInsertPointAtEnd(thenBB)
	if err := c.compileStatement(n.Children[1]); err != nil {
		return err
	}
	c.builder.CreateBr(endBB)

	c.builder.SetInsertPointAtEnd(endBB)
	return nil
}

func (c *JITCompiler) compileWhile(n *Node) error {
	fn := c.builder.GetInsertBlock().Parent()
	condBB := c.ctx.AddBasicBlock(fn, "while.cond")
	c.builder.CreateBr(condBB)

	c.builder.SetInsertPointAtEnd(condBB)
	cond, err := c.compileCondition(n.Children[0])
	if err != nil {
		return err
	}

	bodyBB := c.ctx.AddBasicBlock(fn, "while.body")
	endBB := c.ctx.AddBasicBlock(fn, "while.end")
	c.builder.CreateCondBr(cond, bodyBB, endBB)

	c.builder.SetInsertPointAtEnd(bodyBB)
	if err := c.compileStatement(n.Children[1]); err != nil {
		return err
	}
	c.builder.CreateBr(condBB)

	c.builder.SetInsertPointAtEnd(endBB)
	return nil
}

func (c *JITCompiler) compileOut(n *Node) error {
	val, err := c.compileExpression(n.Children[0])
	if err != nil {
		return err
	}

	outTy := llvm.FunctionType(c.voidTy, []llvm.Type{c.i32Ty}, false)
	outFn := c.module.NamedFunction("out")
	c.builder.CreateCall(outTy, outFn, []llvm.Value{val}, "")
	return nil
}

func (c *JITCompiler) compileCondition(n *Node) (llvm.Value, error) {
	return c.compileSwitchValue(n.Children[0])
}

// compileOdd compares the whole value against zero.
func (c *JITCompiler) compileOdd(n *Node) (llvm.Value, error) {
	val, err := c.compileExpression(n.Children[0])
	if err != nil {
		return llvm.Value{}, err
	}
	zero := llvm.ConstInt(c.i32Ty, 0, false)
	return c.builder.CreateICmp(llvm.IntNE, val, zero, "icmpne"), nil
}

func (c *JITCompiler) compileCompare(n *Node) (llvm.Value, error) {
	lhs, err := c.compileExpression(n.Children[0])
	if err != nil {
		return llvm.Value{}, err
	}
	rhs, err := c.compileExpression(n.Children[2])
	if err != nil {
		return llvm.Value{}, err
	}

	switch op := n.Children[1].Token; op {
	case "=":
		return c.builder.CreateICmp(llvm.IntEQ, lhs, rhs, "icmpeq"), nil
	case "#":
		return c.builder.CreateICmp(llvm.IntNE, lhs, rhs, "icmpne"), nil
	case "<":
		return c.builder.CreateICmp(llvm.IntSLT, lhs, rhs, "icmpslt"), nil
	case "<=":
		return c.builder.CreateICmp(llvm.IntSLE, lhs, rhs, "icmpsle"), nil
	case ">":
		return c.builder.CreateICmp(llvm.IntSGT, lhs, rhs, "icmpsgt"), nil
	default: // ">="
		return c.builder.CreateICmp(llvm.IntSGE, lhs, rhs, "icmpsge"), nil
	}
}

func (c *JITCompiler) compileExpression(n *Node) (llvm.Value, error) {
	nodes := n.Children

	sign := nodes[0].Token
	negative := !(sign == "" || sign == "+")

	val, err := c.compileTerm(nodes[1])
	if err != nil {
		return llvm.Value{}, err
	}
	if negative {
		val = c.builder.CreateNeg(val, "negative")
	}

	for i := 2; i < len(nodes); i += 2 {
		rval, err := c.compileTerm(nodes[i+1])
		if err != nil {
			return llvm.Value{}, err
		}
		switch nodes[i].Token[0] {
		case '+':
			val = c.builder.CreateAdd(val, rval, "add")
		case '-':
			val = c.builder.CreateSub(val, rval, "sub")
		}
	}
	return val, nil
}

func (c *JITCompiler) compileTerm(n *Node) (llvm.Value, error) {
	nodes := n.Children

	val, err := c.compileFactor(nodes[0])
	if err != nil {
		return llvm.Value{}, err
	}

	for i := 1; i < len(nodes); i += 2 {
		rval, err := c.compileSwitchValue(nodes[i+1])
		if err != nil {
			return llvm.Value{}, err
		}
		switch nodes[i].Token[0] {
		case '*':
			val = c.builder.CreateMul(val, rval, "mul")
		case '/':
			// A zero divisor throws before any division happens; emission
			// continues in the non-zero block so later operations never
			// land after the throw.
			zero := llvm.ConstInt(c.i32Ty, 0, false)
			cond := c.builder.CreateICmp(llvm.IntEQ, rval, zero, "icmpeq")

			fn := c.builder.GetInsertBlock().Parent()
			zeroBB := c.ctx.AddBasicBlock(fn, "zdiv.zero")
			nonZeroBB := c.ctx.AddBasicBlock(fn, "zdiv.non_zero")
			c.builder.CreateCondBr(cond, zeroBB, nonZeroBB)

			c.builder.SetInsertPointAtEnd(zeroBB)

			allocTy := llvm.FunctionType(c.ptrTy, []llvm.Type{c.i64Ty}, false)
			allocFn := c.getOrInsertFunction("__cxa_allocate_exception", allocTy)
			eh := c.builder.CreateCall(allocTy, allocFn, []llvm.Value{llvm.ConstInt(c.i64Ty, 8, false)}, "eh")

			payload := c.builder.CreateBitCast(eh, c.ptrTy, "payload")
			msg := c.builder.CreateGlobalStringPtr("divide by 0", ".str.zero_divide")
			c.builder.CreateStore(msg, payload)

			throwTy := llvm.FunctionType(c.voidTy, []llvm.Type{c.ptrTy, c.ptrTy, c.ptrTy}, false)
			throwFn := c.getOrInsertFunction("__cxa_throw", throwTy)
			tyinfoPtr := llvm.ConstBitCast(c.tyinfo, c.ptrTy)
			c.builder.CreateCall(throwTy, throwFn, []llvm.Value{eh, tyinfoPtr, llvm.ConstPointerNull(c.ptrTy)}, "")

			c.builder.CreateUnreachable()

			c.builder.SetInsertPointAtEnd(nonZeroBB)
			val = c.builder.CreateSDiv(val, rval, "div")
		}
	}
	return val, nil
}

func (c *JITCompiler) compileFactor(n *Node) (llvm.Value, error) {
	return c.compileSwitchValue(n.Children[0])
}

func (c *JITCompiler) compileIdent(n *Node) (llvm.Value, error) {
	cell, ok := c.locals[n.Token]
	if !ok {
		return llvm.Value{}, nodeErrorf(n, "'%s' is not defined...", n.Token)
	}
	return c.builder.CreateLoad(c.i32Ty, cell, ""), nil
}

func (c *JITCompiler) compileNumber(n *Node) llvm.Value {
	return llvm.ConstIntFromString(c.i32Ty, n.Token, 10)
}
