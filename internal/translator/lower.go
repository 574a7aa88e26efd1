// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package translator

import (
	"fmt"
	"strconv"
	"strings"

	"stapcore/internal/cemit"
	"stapcore/internal/ir"
	"stapcore/internal/version"
)

// bodyLowerer walks one function or probe body, translating its
// ir.Stmt/ir.Expr tree into the cemit.CStmt/CExpr vocabulary by
// driving the §4.3 helpers (assign.go, control.go, print.go,
// locks.go) over it. One instance lowers exactly one body: its temp
// counter and loop-id counter are scoped to that body only.
//
// hoisted is true when lowering a probe body whose globals are
// already lock-acquired up front by cemit.AcquireSequence (spec.md
// §4.3.7): per-assignment locking is then suppressed since the whole
// body already holds the lock. Function bodies have no such hoisting
// point (they may be called from several contexts), so they keep the
// per-access locking spec.md §4.3.4 describes.
type bodyLowerer struct {
	printPlan *cemit.PrintPlanner
	compat    version.Version
	hoisted   bool

	tmp    int
	loopID int
	decls  []declEntry

	loopStack []cemit.LoopLabels
}

type declEntry struct {
	name string
	typ  ir.Type
}

func newBodyLowerer(printPlan *cemit.PrintPlanner, compat version.Version, hoisted bool) *bodyLowerer {
	return &bodyLowerer{printPlan: printPlan, compat: compat, hoisted: hoisted}
}

func (lw *bodyLowerer) declareLocal(v *ir.VarDecl) {
	lw.decls = append(lw.decls, declEntry{name: v.Name, typ: v.Type})
}

func (lw *bodyLowerer) newTemp(t ir.Type) string {
	name := fmt.Sprintf("__t%d", lw.tmp)
	lw.tmp++
	lw.decls = append(lw.decls, declEntry{name: name, typ: t})
	return name
}

func (lw *bodyLowerer) nextID() int {
	id := lw.loopID
	lw.loopID++
	return id
}

func (lw *bodyLowerer) declStmts() *cemit.CStmt {
	b := cemit.Block()
	for _, d := range lw.decls {
		b.Append(cemit.Raw("%s %s;", cemit.CTypeForType(d.typ), d.name))
	}
	return b
}

func (lw *bodyLowerer) currentBreak() string {
	if len(lw.loopStack) == 0 {
		return "out"
	}
	return lw.loopStack[len(lw.loopStack)-1].Break
}

func (lw *bodyLowerer) currentContinue() string {
	if len(lw.loopStack) == 0 {
		return "out"
	}
	return lw.loopStack[len(lw.loopStack)-1].Continue
}

func tokString(t ir.Token) string {
	if t.Source != "" {
		return t.Source
	}
	return fmt.Sprintf("%s:%d", t.File, t.Line)
}

// LowerBody lowers a full function or probe body. The caller wraps
// the result with its own nesting guard / out label / epilogue;
// LowerBody itself only produces the declarations the walk
// accumulated plus the translated statements.
func (lw *bodyLowerer) LowerBody(body *ir.Stmt) (*cemit.CStmt, error) {
	b := cemit.Block()
	if err := lw.lowerStmt(b, body); err != nil {
		return nil, err
	}
	return cemit.Block(lw.declStmts(), b), nil
}

func (lw *bodyLowerer) lowerStmt(b *cemit.CStmt, s *ir.Stmt) error {
	if s == nil {
		return nil
	}
	switch s.Kind {
	case ir.StmtBlock:
		for _, c := range s.Stmts {
			if err := lw.lowerStmt(b, c); err != nil {
				return err
			}
		}
	case ir.StmtNull:
	case ir.StmtEmbeddedC:
		if s.E != nil {
			b.Append(cemit.Raw("%s", s.E.StringValue))
		}
	case ir.StmtExpr:
		if _, err := lw.lowerExpr(b, s.E); err != nil {
			return err
		}
		b.Append(cemit.ActionBudget(1))
	case ir.StmtDelete:
		if err := lw.lowerDelete(b, s); err != nil {
			return err
		}
	case ir.StmtIf:
		cond, err := lw.lowerBoolExpr(b, s.Cond)
		if err != nil {
			return err
		}
		thenB := cemit.Block()
		if err := lw.lowerStmt(thenB, s.Then); err != nil {
			return err
		}
		var elseB *cemit.CStmt
		if s.Else != nil {
			elseB = cemit.Block()
			if err := lw.lowerStmt(elseB, s.Else); err != nil {
				return err
			}
		}
		b.Append(cemit.If(string(cond), thenB, elseB))
	case ir.StmtFor:
		if err := lw.lowerFor(b, s); err != nil {
			return err
		}
	case ir.StmtForeach:
		if err := lw.lowerForeach(b, s); err != nil {
			return err
		}
	case ir.StmtReturn:
		if s.Value != nil {
			v, err := lw.lowerExpr(b, s.Value)
			if err != nil {
				return err
			}
			b.Append(cemit.Raw("__retvalue = %s;", v))
		}
		b.Append(cemit.NextOrReturn(0))
	case ir.StmtNext:
		b.Append(cemit.NextOrReturn(0))
	case ir.StmtBreak:
		b.Append(cemit.Goto(lw.currentBreak()))
	case ir.StmtContinue:
		b.Append(cemit.Goto(lw.currentContinue()))
	case ir.StmtTryCatch:
		if err := lw.lowerTryCatch(b, s); err != nil {
			return err
		}
	}
	return nil
}

func (lw *bodyLowerer) lowerDelete(b *cemit.CStmt, s *ir.Stmt) error {
	e := s.E
	if e == nil {
		return nil
	}
	switch e.Kind {
	case ir.ExprSymbol:
		name := string(lw.symbolExpr(e))
		b.Append(cemit.Raw("%s = 0;", name))
	case ir.ExprArrayIndex:
		var keys []string
		for _, idx := range e.Indices {
			v, err := lw.lowerExpr(b, idx)
			if err != nil {
				return err
			}
			keys = append(keys, string(v))
		}
		b.Append(cemit.Raw("_stp_map_del(global_%s, %s);", e.Decl.Name, strings.Join(keys, ", ")))
	}
	b.Append(cemit.ActionBudget(1))
	return nil
}

// lowerFor re-checks cond as literal text on every iteration via
// ForLoop's goto-back-to-label idiom: a cond prelude (side-effecting
// expressions the comparison itself needs) only runs once, during the
// initial pass, since it is emitted alongside Init rather than inside
// the per-iteration check.
func (lw *bodyLowerer) lowerFor(b *cemit.CStmt, s *ir.Stmt) error {
	id := lw.nextID()
	labels := cemit.LoopLabelsFor(id)

	initB := cemit.Block()
	if err := lw.lowerStmt(initB, s.Init); err != nil {
		return err
	}
	cond, err := lw.lowerBoolExpr(initB, s.Cond)
	if err != nil {
		return err
	}
	postB := cemit.Block()
	if err := lw.lowerStmt(postB, s.Post); err != nil {
		return err
	}

	lw.loopStack = append(lw.loopStack, labels)
	bodyB := cemit.Block()
	err = lw.lowerStmt(bodyB, s.Body)
	lw.loopStack = lw.loopStack[:len(lw.loopStack)-1]
	if err != nil {
		return err
	}

	b.Append(cemit.ForLoop(id, initB, cond, postB, bodyB))
	return nil
}

func (lw *bodyLowerer) lowerForeach(b *cemit.CStmt, s *ir.Stmt) error {
	id := lw.nextID()
	labels := cemit.LoopLabelsFor(id)

	if s.Hist != nil && s.Array == nil {
		bucketExpr, err := lw.lowerExpr(b, s.Hist)
		if err != nil {
			return err
		}
		lw.loopStack = append(lw.loopStack, labels)
		bodyB := cemit.Block()
		if s.Iter != nil {
			bodyB.Append(cemit.Raw("%s = __hi_%d;", s.Iter.Name, id))
		}
		err = lw.lowerStmt(bodyB, s.Body)
		lw.loopStack = lw.loopStack[:len(lw.loopStack)-1]
		if err != nil {
			return err
		}
		b.Append(cemit.ForeachHistogram(id, cemit.CExpr(fmt.Sprintf("_stp_stat_buckets(%s)", bucketExpr)), bodyB))
		return nil
	}

	if s.Array == nil {
		return fmt.Errorf("lower.go: foreach with neither an array nor a histogram target")
	}
	if s.Hist != nil {
		b.Append(cemit.Comment("foreach over a per-key histogram's buckets is not lowered; iterating keys only"))
	}

	mapName := s.Array.Name
	isPmap := s.Array.Stat != nil

	limitSlot := ""
	if s.Limit != nil {
		lv, err := lw.lowerExpr(b, s.Limit)
		if err != nil {
			return err
		}
		limitSlot = lw.newTemp(ir.Long)
		b.Append(cemit.Raw("%s = %s;", limitSlot, lv))
	}

	iterSlot := lw.newTemp(ir.Long)
	lw.loopStack = append(lw.loopStack, labels)
	bodyB := cemit.Block()
	if s.Iter != nil {
		bodyB.Append(cemit.Raw("%s = _stp_map_key(__it_%s);", s.Iter.Name, iterSlot))
	}
	err := lw.lowerStmt(bodyB, s.Body)
	lw.loopStack = lw.loopStack[:len(lw.loopStack)-1]
	if err != nil {
		return err
	}

	fp := cemit.ForeachPlan{IteratorSlot: iterSlot, SortColumn: s.SortColumn, SortDir: s.SortDir, Invariant: s.Invariant}
	b.Append(cemit.ForeachArray(id, mapName, isPmap, limitSlot, fp, bodyB, tokString(s.Tok)))
	return nil
}

func (lw *bodyLowerer) lowerTryCatch(b *cemit.CStmt, s *ir.Stmt) error {
	id := lw.nextID()
	tryB := cemit.Block()
	if err := lw.lowerStmt(tryB, s.Try); err != nil {
		return err
	}
	catchB := cemit.Block()
	if err := lw.lowerStmt(catchB, s.Catch); err != nil {
		return err
	}
	catchVar := ""
	if s.CatchVar != nil {
		catchVar = s.CatchVar.Name
	}
	b.Append(cemit.TryCatch(id, tryB, catchVar, catchB))
	return nil
}

// lowerExpr lowers e as a value-producing expression, materializing
// anything nontrivial into a fresh temp so control-flow helpers never
// need to re-evaluate a subexpression with side effects.
func (lw *bodyLowerer) lowerExpr(b *cemit.CStmt, e *ir.Expr) (cemit.CExpr, error) {
	if e == nil {
		return cemit.CExpr("0"), nil
	}
	switch e.Kind {
	case ir.ExprLiteralLong:
		return cemit.CExpr(strconv.FormatInt(e.LongValue, 10)), nil
	case ir.ExprLiteralString:
		return cemit.CExpr(fmt.Sprintf("%q", e.StringValue)), nil
	case ir.ExprEmbeddedC:
		return cemit.CExpr(e.StringValue), nil
	case ir.ExprUnary:
		sub, err := lw.lowerExpr(b, e.Sub)
		if err != nil {
			return "", err
		}
		if e.Op == ir.OpSub {
			return cemit.UnaryMinus(sub), nil
		}
		return sub, nil
	case ir.ExprBinary:
		lhs, err := lw.lowerExpr(b, e.LHS)
		if err != nil {
			return "", err
		}
		rhs, err := lw.lowerExpr(b, e.RHS)
		if err != nil {
			return "", err
		}
		slot := lw.newTemp(e.Type)
		b.Append(cemit.Raw("%s = %s;", slot, cemit.BinOp(e.Op, lhs, rhs)))
		return cemit.CExpr(slot), nil
	case ir.ExprLogical:
		lhs, err := lw.lowerBoolExpr(b, e.LHS)
		if err != nil {
			return "", err
		}
		rhs, err := lw.lowerBoolExpr(b, e.RHS)
		if err != nil {
			return "", err
		}
		return cemit.CExpr(fmt.Sprintf("(%s %s %s)", lhs, e.CmpOp, rhs)), nil
	case ir.ExprComparison:
		return lw.lowerComparison(b, e, true)
	case ir.ExprConcat:
		var parts []cemit.CExpr
		for _, a := range e.Args {
			v, err := lw.lowerExpr(b, a)
			if err != nil {
				return "", err
			}
			parts = append(parts, v)
		}
		slot := lw.newTemp(ir.String)
		b.Append(cemit.ConcatTemp(slot, parts))
		return cemit.CExpr(slot), nil
	case ir.ExprTernary:
		return lw.lowerTernary(b, e)
	case ir.ExprSymbol:
		return lw.symbolExpr(e), nil
	case ir.ExprArrayIndex:
		return lw.lowerArrayRead(b, e)
	case ir.ExprFuncCall:
		return lw.lowerFuncCall(b, e)
	case ir.ExprPrintFormat:
		return lw.lowerPrint(b, e)
	case ir.ExprStatOp:
		return lw.lowerStatOp(b, e)
	case ir.ExprPreIncDec, ir.ExprPostIncDec:
		return lw.lowerIncDec(b, e)
	case ir.ExprAssignment:
		return lw.lowerAssignment(b, e)
	default:
		return cemit.CExpr("0"), nil
	}
}

// lowerBoolExpr lowers e for use directly as an if/for condition,
// keeping && / || and comparisons as raw text so ForLoop's
// re-tested-every-iteration condition stays a single C expression
// rather than a temp frozen at the first evaluation.
func (lw *bodyLowerer) lowerBoolExpr(b *cemit.CStmt, e *ir.Expr) (cemit.CExpr, error) {
	if e == nil {
		return cemit.CExpr("1"), nil
	}
	switch e.Kind {
	case ir.ExprLogical:
		lhs, err := lw.lowerBoolExpr(b, e.LHS)
		if err != nil {
			return "", err
		}
		rhs, err := lw.lowerBoolExpr(b, e.RHS)
		if err != nil {
			return "", err
		}
		return cemit.CExpr(fmt.Sprintf("(%s %s %s)", lhs, e.CmpOp, rhs)), nil
	case ir.ExprComparison:
		return lw.lowerComparison(b, e, false)
	default:
		return lw.lowerExpr(b, e)
	}
}

func (lw *bodyLowerer) lowerComparison(b *cemit.CStmt, e *ir.Expr, materialize bool) (cemit.CExpr, error) {
	lhs, err := lw.lowerExpr(b, e.LHS)
	if err != nil {
		return "", err
	}
	rhs, err := lw.lowerExpr(b, e.RHS)
	if err != nil {
		return "", err
	}
	var text cemit.CExpr
	if e.LHS.Type == ir.String || e.RHS.Type == ir.String {
		text = cemit.CExpr(fmt.Sprintf("(%s %s 0)", cemit.StringCompare(lhs, rhs), e.CmpOp))
	} else {
		text = cemit.CExpr(fmt.Sprintf("(%s %s %s)", lhs, e.CmpOp, rhs))
	}
	if !materialize {
		return text, nil
	}
	slot := lw.newTemp(ir.Long)
	b.Append(cemit.Raw("%s = %s;", slot, text))
	return cemit.CExpr(slot), nil
}

func (lw *bodyLowerer) lowerTernary(b *cemit.CStmt, e *ir.Expr) (cemit.CExpr, error) {
	cond, err := lw.lowerBoolExpr(b, e.Cond)
	if err != nil {
		return "", err
	}
	slot := lw.newTemp(e.Type)
	thenB := cemit.Block()
	thenVal, err := lw.lowerExpr(thenB, e.Then)
	if err != nil {
		return "", err
	}
	thenB.Append(cemit.Raw("%s = %s;", slot, thenVal))
	elseB := cemit.Block()
	elseVal, err := lw.lowerExpr(elseB, e.Else)
	if err != nil {
		return "", err
	}
	elseB.Append(cemit.Raw("%s = %s;", slot, elseVal))
	b.Append(cemit.If(string(cond), thenB, elseB))
	return cemit.CExpr(slot), nil
}

func (lw *bodyLowerer) symbolExpr(e *ir.Expr) cemit.CExpr {
	if e.Decl != nil && e.Decl.Global {
		return cemit.CExpr("global_" + e.Symbol)
	}
	return cemit.CExpr(e.Symbol)
}

// isGlobalTarget reports whether an assignment/incdec target needs its
// own lock/unlock pair: function bodies always lock per access, probe
// bodies never do since their globals are already held for the whole
// body (spec.md §4.3.7).
func (lw *bodyLowerer) isGlobalTarget(decl *ir.VarDecl) bool {
	return decl != nil && decl.Global && !lw.hoisted
}

func (lw *bodyLowerer) lowerArrayRead(b *cemit.CStmt, e *ir.Expr) (cemit.CExpr, error) {
	var keys []string
	for _, idx := range e.Indices {
		v, err := lw.lowerExpr(b, idx)
		if err != nil {
			return "", err
		}
		keys = append(keys, string(v))
	}
	slot := lw.newTemp(e.Type)
	b.Append(cemit.Raw("%s = _stp_map_get(global_%s, %s);", slot, e.Decl.Name, strings.Join(keys, ", ")))
	return cemit.CExpr(slot), nil
}

// lowerFuncCall charges the call as one action and invokes the
// generated function; it does not yet marshal arguments or consume a
// return value, since script-level function calls are not part of
// this translator's invariant surface (cmd/stapcore only ever probes
// functions, it never calls them from other script functions today).
func (lw *bodyLowerer) lowerFuncCall(b *cemit.CStmt, e *ir.Expr) (cemit.CExpr, error) {
	for _, a := range e.Args {
		if _, err := lw.lowerExpr(b, a); err != nil {
			return "", err
		}
	}
	b.Append(cemit.Raw("function_%s(c);", e.Callee))
	b.Append(cemit.ActionBudget(1))
	return cemit.CExpr("0"), nil
}

var statOpNames = map[ir.StatOp]string{
	ir.StatCount: "COUNT",
	ir.StatSum:   "SUM",
	ir.StatMin:   "MIN",
	ir.StatMax:   "MAX",
	ir.StatAvg:   "AVG",
}

func (lw *bodyLowerer) lowerStatOp(b *cemit.CStmt, e *ir.Expr) (cemit.CExpr, error) {
	target, err := lw.lowerExpr(b, e.StatTarget)
	if err != nil {
		return "", err
	}
	slot := lw.newTemp(ir.Long)
	b.Append(cemit.Raw("%s = _stp_stat_get(%s, HIST_%s);", slot, target, statOpNames[e.StatOp]))
	return cemit.CExpr(slot), nil
}

func (lw *bodyLowerer) lowerIncDec(b *cemit.CStmt, e *ir.Expr) (cemit.CExpr, error) {
	binOp := ir.OpAdd
	if e.Decr {
		binOp = ir.OpSub
	}
	target := e.Sub
	slot := lw.newTemp(e.Type)
	stmtTok := tokString(e.Tok)

	switch target.Kind {
	case ir.ExprSymbol:
		name := string(lw.symbolExpr(target))
		isGlobal := lw.isGlobalTarget(target.Decl)
		if e.Kind == ir.ExprPostIncDec {
			b.Append(cemit.PostIncDecAssign(name, slot, binOp, isGlobal))
		} else {
			b.Append(cemit.ScalarAssign(name, "1", slot, "+=", binOp, isGlobal, stmtTok))
		}
	case ir.ExprArrayIndex:
		var keys []string
		for _, idx := range target.Indices {
			v, err := lw.lowerExpr(b, idx)
			if err != nil {
				return "", err
			}
			keys = append(keys, string(v))
		}
		guard := cemit.MapInsertGuard(target.Decl, stmtTok)
		b.Append(cemit.Comment("array increment/decrement yields the post-op value regardless of pre/post form"))
		b.Append(cemit.ArrayElementAssign(target.Decl.Name, keys, "1", slot, "+=", binOp, guard))
	default:
		return "", fmt.Errorf("lower.go: unsupported increment/decrement target kind %v", target.Kind)
	}
	return cemit.CExpr(slot), nil
}

func binOpForAssignOp(op string) (ir.BinOp, string) {
	switch op {
	case "+=":
		return ir.OpAdd, "+="
	case "-=":
		return ir.OpSub, "-="
	case "*=":
		return ir.OpMul, "*="
	case "/=":
		return ir.OpDiv, "/="
	case "%=":
		return ir.OpMod, "%="
	case "&=":
		return ir.OpAnd, "&="
	case "|=":
		return ir.OpOr, "|="
	case "^=":
		return ir.OpXor, "^="
	case "<<=":
		return ir.OpShl, "<<="
	case ">>=":
		return ir.OpShr, ">>="
	default:
		return ir.OpAdd, "="
	}
}

func (lw *bodyLowerer) lowerAssignment(b *cemit.CStmt, e *ir.Expr) (cemit.CExpr, error) {
	rv, err := lw.lowerExpr(b, e.Value)
	if err != nil {
		return "", err
	}
	slot := lw.newTemp(e.Type)
	stmtTok := tokString(e.Tok)

	switch e.Target.Kind {
	case ir.ExprSymbol:
		name := string(lw.symbolExpr(e.Target))
		isGlobal := lw.isGlobalTarget(e.Target.Decl)
		if e.AssignOp == "<<<" {
			b.Append(cemit.StatAppend(name, string(rv), slot))
		} else {
			binOp, opStr := binOpForAssignOp(e.AssignOp)
			b.Append(cemit.ScalarAssign(name, string(rv), slot, opStr, binOp, isGlobal, stmtTok))
		}
	case ir.ExprArrayIndex:
		var keys []string
		for _, idx := range e.Target.Indices {
			v, err := lw.lowerExpr(b, idx)
			if err != nil {
				return "", err
			}
			keys = append(keys, string(v))
		}
		guard := cemit.MapInsertGuard(e.Target.Decl, stmtTok)
		binOp, opStr := binOpForAssignOp(e.AssignOp)
		b.Append(cemit.ArrayElementAssign(e.Target.Decl.Name, keys, string(rv), slot, opStr, binOp, guard))
	default:
		return "", fmt.Errorf("lower.go: unsupported assignment target kind %v", e.Target.Kind)
	}
	return cemit.CExpr(slot), nil
}

func (lw *bodyLowerer) lowerPrint(b *cemit.CStmt, e *ir.Expr) (cemit.CExpr, error) {
	if len(e.Args) == 1 && e.Args[0].Kind == ir.ExprHistOp {
		target, err := lw.lowerExpr(b, e.Args[0].HistTarget)
		if err != nil {
			return "", err
		}
		b.Append(cemit.Raw("_stp_print_histogram(%s);", target))
		return cemit.CExpr("0"), nil
	}

	k := cemit.PrintKey{ToStream: e.ToStream, Format: e.Format}
	name := lw.printPlan.Register(k)

	var args []cemit.CExpr
	for _, a := range e.Args {
		v, err := lw.lowerExpr(b, a)
		if err != nil {
			return "", err
		}
		args = append(args, v)
	}
	if len(args) > cemit.MaxPrintArgs {
		return "", fmt.Errorf("lower.go: print call with %d arguments exceeds the %d-argument cap", len(args), cemit.MaxPrintArgs)
	}
	b.Append(cemit.CallPrinter(name, args))

	if !e.ToStream {
		slot := lw.newTemp(ir.String)
		b.Append(cemit.Raw("strlcpy(%s, __stp_printf_locals.__retvalue, MAXSTRINGLEN);", slot))
		return cemit.CExpr(slot), nil
	}
	return cemit.CExpr("0"), nil
}

// collectPrintKeys registers every distinct (to_stream, format) pair a
// body's print/sprint calls use, without otherwise lowering it. The
// driver runs this over every function and probe body before emitting
// the common header, so every specialized printer EmitPrinter needs to
// generate already has a registered name by the time any body is
// actually lowered, spec.md §4.5 step 2 / §4.3.5.
func collectPrintKeys(s *ir.Stmt, pp *cemit.PrintPlanner) {
	if s == nil {
		return
	}
	switch s.Kind {
	case ir.StmtBlock:
		for _, c := range s.Stmts {
			collectPrintKeys(c, pp)
		}
	case ir.StmtTryCatch:
		collectPrintKeys(s.Try, pp)
		collectPrintKeys(s.Catch, pp)
	case ir.StmtExpr, ir.StmtDelete:
		collectPrintKeysExpr(s.E, pp)
	case ir.StmtIf:
		collectPrintKeysExpr(s.Cond, pp)
		collectPrintKeys(s.Then, pp)
		collectPrintKeys(s.Else, pp)
	case ir.StmtFor:
		collectPrintKeys(s.Init, pp)
		collectPrintKeysExpr(s.Cond, pp)
		collectPrintKeys(s.Post, pp)
		collectPrintKeys(s.Body, pp)
	case ir.StmtForeach:
		collectPrintKeysExpr(s.Limit, pp)
		collectPrintKeysExpr(s.Hist, pp)
		collectPrintKeys(s.Body, pp)
	case ir.StmtReturn:
		collectPrintKeysExpr(s.Value, pp)
	}
}

func collectPrintKeysExpr(e *ir.Expr, pp *cemit.PrintPlanner) {
	if e == nil {
		return
	}
	switch e.Kind {
	case ir.ExprPrintFormat:
		if !(len(e.Args) == 1 && e.Args[0].Kind == ir.ExprHistOp) {
			pp.Register(cemit.PrintKey{ToStream: e.ToStream, Format: e.Format})
		}
		for _, a := range e.Args {
			collectPrintKeysExpr(a, pp)
		}
	case ir.ExprUnary, ir.ExprPreIncDec, ir.ExprPostIncDec:
		collectPrintKeysExpr(e.Sub, pp)
	case ir.ExprBinary, ir.ExprLogical, ir.ExprComparison:
		collectPrintKeysExpr(e.LHS, pp)
		collectPrintKeysExpr(e.RHS, pp)
	case ir.ExprConcat, ir.ExprFuncCall:
		for _, a := range e.Args {
			collectPrintKeysExpr(a, pp)
		}
	case ir.ExprTernary:
		collectPrintKeysExpr(e.Cond, pp)
		collectPrintKeysExpr(e.Then, pp)
		collectPrintKeysExpr(e.Else, pp)
	case ir.ExprArrayIndex:
		for _, idx := range e.Indices {
			collectPrintKeysExpr(idx, pp)
		}
	case ir.ExprStatOp:
		collectPrintKeysExpr(e.StatTarget, pp)
	case ir.ExprHistOp:
		collectPrintKeysExpr(e.HistTarget, pp)
	case ir.ExprAssignment:
		collectPrintKeysExpr(e.Target, pp)
		collectPrintKeysExpr(e.Value, pp)
	}
}
