package compiler

import (
	"path/filepath"
	"strings"

	"github.com/chazu/neon/vm"
)

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

func (p *Parser) declaration() {
	switch {
	case p.match(TokenClass):
		p.classDeclaration()
	case p.curTokenIs(TokenFunction) && p.peekTokenIs(TokenIdentifier):
		p.nextToken()
		p.functionDeclaration()
	case p.match(TokenVar):
		p.varDeclaration(false)
	case p.match(TokenConst):
		p.varDeclaration(true)
	default:
		p.statement()
	}
	if p.panicMode {
		p.synchronize()
	}
}

// varDeclaration compiles "var a = 1, b" and "const c = 2".
func (p *Parser) varDeclaration(isConst bool) {
	for {
		name, global := p.parseVariable("expected variable name")
		switch {
		case p.match(TokenAssign):
			p.expression()
		case isConst:
			p.errorAtCurrent("const '" + name + "' requires an initializer")
		default:
			p.emitOp(vm.OpPushNull)
		}
		if isConst {
			if p.fs.scopeDepth > 0 {
				p.fs.locals[len(p.fs.locals)-1].isConst = true
			} else {
				p.constants[name] = true
			}
		}
		p.defineVariable(global)
		if !p.match(TokenComma) {
			break
		}
	}
	p.endStatement()
}

func (p *Parser) functionDeclaration() {
	name, global := p.parseVariable("expected function name")
	// Locals are usable inside their own body for recursion.
	p.markInitialized()
	p.function(vm.FuncKindFunction, name)
	p.defineVariable(global)
}

// function compiles a parameter list and body, leaving the closure on
// the stack.
func (p *Parser) function(kind vm.FuncKind, name string) {
	p.beginFunction(kind, name)
	p.beginScope()

	p.expect(TokenLParen, "expected '(' after function name")
	var defaults []int
	for !p.curTokenIs(TokenRParen) && !p.curTokenIs(TokenEOF) {
		fn := p.fs.fn
		fn.Arity++
		if fn.Arity > maxArgs {
			p.errorAtCurrent("cannot have more than 255 parameters")
		}
		if p.match(TokenEllipsis) {
			p.expect(TokenIdentifier, "expected identifier after '...'")
			p.declareLocal(p.prevToken.Literal)
			p.markInitialized()
			fn.Variadic = true
			break
		}
		p.expect(TokenIdentifier, "expected parameter name")
		slot := p.declareLocal(p.prevToken.Literal)
		p.markInitialized()
		if p.match(TokenAssign) {
			// FuncArgDefault skips the default when the caller passed at
			// least slot arguments.
			p.emitOp(vm.OpFuncArgDefault)
			p.emitShort(slot)
			skip := p.emitShort(0xffff)
			p.expression()
			p.emitOpShort(vm.OpLocalSet, slot)
			p.emitOp(vm.OpPop)
			p.patchJump(skip)
			defaults = append(defaults, slot)
		} else if len(defaults) > 0 {
			p.errorf("parameter '%s' without default follows one with a default", p.prevToken.Literal)
		}
		if !p.match(TokenComma) {
			break
		}
	}
	p.expect(TokenRParen, "expected ')' after parameters")

	p.expect(TokenLBrace, "expected '{' before function body")
	p.block()

	fn, upvalues := p.endFunction()
	p.emitClosure(fn, upvalues)
}

// classDeclaration compiles
//
//	class Name [< Super | extends Super] { members }
//
// Members are fields ("var x = 1"), methods ("name(args) { }" or with a
// function keyword), and their static forms.
func (p *Parser) classDeclaration() {
	p.expect(TokenIdentifier, "expected class name")
	className := p.prevToken.Literal
	nameConst := p.identifierConstant(className)
	if p.fs.scopeDepth > 0 {
		p.declareLocal(className)
	}
	p.emitOpShort(vm.OpMakeClass, nameConst)
	p.defineVariable(nameConst)

	cs := &classState{enclosing: p.cls, name: className}
	p.cls = cs

	if p.match(TokenLess) || p.match(TokenExtends) {
		p.expect(TokenIdentifier, "expected superclass name")
		superName := p.prevToken.Literal
		if superName == className {
			p.errorf("class '%s' cannot inherit from itself", className)
		}
		p.namedVariable(superName, false)
		p.beginScope()
		p.addLocal("super")
		p.markInitialized()
		p.namedVariable(className, false)
		p.emitOp(vm.OpClassInherit)
		cs.hasSuperclass = true
	}

	p.namedVariable(className, false)
	p.expect(TokenLBrace, "expected '{' before class body")
	for !p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) {
		p.classMember()
		if p.panicMode {
			p.synchronizeClass()
		}
	}
	p.expect(TokenRBrace, "expected '}' after class body")
	p.emitOp(vm.OpPop)

	if cs.hasSuperclass {
		p.endScope()
	}
	p.cls = cs.enclosing
}

func (p *Parser) classMember() {
	static := p.match(TokenStatic)
	if p.match(TokenVar) || p.match(TokenConst) {
		p.expect(TokenIdentifier, "expected field name")
		name := p.identifierConstant(p.prevToken.Literal)
		if p.match(TokenAssign) {
			p.expression()
		} else {
			p.emitOp(vm.OpPushNull)
		}
		p.emitOpShort(vm.OpClassPropertyDefine, name)
		p.emitByte(boolByte(static))
		p.endStatement()
		return
	}
	p.match(TokenFunction)
	if !p.expect(TokenIdentifier, "expected method or field declaration in class body") {
		return
	}
	methodName := p.prevToken.Literal
	name := p.identifierConstant(methodName)
	kind := vm.FuncKindMethod
	switch {
	case static:
		kind = vm.FuncKindStatic
	case methodName == "constructor":
		kind = vm.FuncKindInitializer
	}
	p.function(kind, methodName)
	p.emitOpShort(vm.OpMakeMethod, name)
	p.emitByte(boolByte(static))
}

func (p *Parser) synchronizeClass() {
	p.panicMode = false
	for !p.curTokenIs(TokenEOF) && !p.curTokenIs(TokenRBrace) {
		if p.curToken.NewlineBefore {
			return
		}
		p.nextToken()
	}
}

func boolByte(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (p *Parser) statement() {
	switch {
	case p.match(TokenEcho):
		p.expression()
		p.emitOp(vm.OpEcho)
		p.endStatement()
	case p.match(TokenIf):
		p.ifStatement()
	case p.match(TokenWhile):
		p.whileStatement()
	case p.match(TokenDo):
		p.doWhileStatement()
	case p.match(TokenFor):
		p.forStatement()
	case p.match(TokenForeach):
		p.foreachStatement()
	case p.match(TokenSwitch):
		p.switchStatement()
	case p.match(TokenTry):
		p.tryStatement()
	case p.match(TokenReturn):
		p.returnStatement()
	case p.match(TokenBreak):
		p.breakStatement()
	case p.match(TokenContinue):
		p.continueStatement()
	case p.match(TokenThrow):
		p.expression()
		p.emitOp(vm.OpThrow)
		p.endStatement()
	case p.match(TokenAssert):
		p.assertStatement()
	case p.match(TokenImport):
		p.importStatement()
	case p.match(TokenLBrace):
		p.beginScope()
		p.block()
		p.endScope()
	case p.match(TokenSemicolon):
	default:
		p.expressionStatement()
	}
}

// block compiles declarations up to the closing brace. The caller owns
// the scope.
func (p *Parser) block() {
	terminated := false
	for !p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) {
		if terminated {
			p.warnf("unreachable code")
			terminated = false
		}
		switch p.curToken.Type {
		case TokenReturn, TokenBreak, TokenContinue, TokenThrow:
			terminated = true
		}
		p.declaration()
	}
	p.expect(TokenRBrace, "expected '}' after block")
}

func (p *Parser) expressionStatement() {
	p.expression()
	p.emitOp(vm.OpPop)
	p.endStatement()
}

// condition parses an if/while condition. Parentheses are optional.
func (p *Parser) condition() {
	p.expression()
}

func (p *Parser) ifStatement() {
	p.condition()
	thenJump := p.emitJump(vm.OpJumpIfFalse)
	p.emitOp(vm.OpPop)
	p.statement()

	elseJump := p.emitJump(vm.OpJumpNow)
	p.patchJump(thenJump)
	p.emitOp(vm.OpPop)
	if p.match(TokenElse) {
		p.statement()
	}
	p.patchJump(elseJump)
}

// ---------------------------------------------------------------------------
// Loops
// ---------------------------------------------------------------------------

func (p *Parser) beginLoop(continueAt int, isSwitch bool) *loopState {
	l := &loopState{
		enclosing:  p.fs.loop,
		isSwitch:   isSwitch,
		scopeDepth: p.fs.scopeDepth,
		tryDepth:   p.fs.tryDepth,
		continueAt: continueAt,
	}
	p.fs.loop = l
	return l
}

// endLoop patches every break to the current position.
func (p *Parser) endLoop(l *loopState) {
	for _, at := range l.breaks {
		p.patchJump(at)
	}
	p.fs.loop = l.enclosing
}

// localsAbove returns the index of the first local deeper than depth.
func (p *Parser) localsAbove(depth int) int {
	n := len(p.fs.locals)
	for n > 0 && p.fs.locals[n-1].depth > depth {
		n--
	}
	return n
}

// leaveLoop emits the cleanup a jump out of l's body needs: handlers of
// try blocks opened inside it and locals declared inside it.
func (p *Parser) leaveLoop(l *loopState) {
	for i := l.tryDepth; i < p.fs.tryDepth; i++ {
		p.emitOp(vm.OpPopTry)
	}
	p.discardLocals(p.localsAbove(l.scopeDepth))
}

func (p *Parser) breakStatement() {
	l := p.fs.loop
	if l == nil {
		p.errorf("'break' can only be used in a loop or switch")
		return
	}
	p.leaveLoop(l)
	l.breaks = append(l.breaks, p.emitJump(vm.OpJumpNow))
	p.endStatement()
}

func (p *Parser) continueStatement() {
	l := p.fs.loop
	for l != nil && l.isSwitch {
		l = l.enclosing
	}
	if l == nil {
		p.errorf("'continue' can only be used in a loop")
		return
	}
	p.leaveLoop(l)
	if l.continueAt >= 0 {
		p.emitLoop(l.continueAt)
	} else {
		l.continues = append(l.continues, p.emitJump(vm.OpJumpNow))
	}
	p.endStatement()
}

func (p *Parser) whileStatement() {
	start := p.blob().Len()
	p.condition()
	exit := p.emitJump(vm.OpJumpIfFalse)
	p.emitOp(vm.OpPop)

	l := p.beginLoop(start, false)
	p.statement()
	p.emitLoop(start)

	p.patchJump(exit)
	p.emitOp(vm.OpPop)
	p.endLoop(l)
}

func (p *Parser) doWhileStatement() {
	start := p.blob().Len()
	l := p.beginLoop(-1, false)
	p.statement()

	p.expect(TokenWhile, "expected 'while' after do body")
	for _, at := range l.continues {
		p.patchJump(at)
	}
	p.condition()
	exit := p.emitJump(vm.OpJumpIfFalse)
	p.emitOp(vm.OpPop)
	p.emitLoop(start)
	p.patchJump(exit)
	p.emitOp(vm.OpPop)
	p.endLoop(l)
	p.endStatement()
}

// forStatement compiles both "for (init; cond; step) body" and the
// iterator forms "for (v in expr)" and "for (k, v in expr)".
func (p *Parser) forStatement() {
	paren := p.match(TokenLParen)
	if p.curTokenIs(TokenIdentifier) && (p.peekTokenIs(TokenIn) || p.peekTokenIs(TokenComma)) {
		p.iteration(paren)
		return
	}
	if !paren {
		p.errorAtCurrent("expected '(' after 'for'")
		return
	}

	p.beginScope()
	switch {
	case p.match(TokenSemicolon):
	case p.match(TokenVar):
		p.varDeclaration(false)
	default:
		p.expressionStatement()
	}

	loopStart := p.blob().Len()
	exit := -1
	if !p.match(TokenSemicolon) {
		p.expression()
		p.expect(TokenSemicolon, "expected ';' after loop condition")
		exit = p.emitJump(vm.OpJumpIfFalse)
		p.emitOp(vm.OpPop)
	}

	if !p.match(TokenRParen) {
		bodyJump := p.emitJump(vm.OpJumpNow)
		stepStart := p.blob().Len()
		p.expression()
		p.emitOp(vm.OpPop)
		p.expect(TokenRParen, "expected ')' after for clauses")
		p.emitLoop(loopStart)
		loopStart = stepStart
		p.patchJump(bodyJump)
	}

	l := p.beginLoop(loopStart, false)
	p.statement()
	p.emitLoop(loopStart)

	if exit != -1 {
		p.patchJump(exit)
		p.emitOp(vm.OpPop)
	}
	p.endLoop(l)
	p.endScope()
}

func (p *Parser) foreachStatement() {
	paren := p.match(TokenLParen)
	p.iteration(paren)
}

// iteration compiles a loop over the @itern/@iter protocol:
//
//	key = iter.@itern(key); while key is truthy: value = iter.@iter(key)
func (p *Parser) iteration(paren bool) {
	p.expect(TokenIdentifier, "expected variable name")
	keyName, valueName := "", p.prevToken.Literal
	if p.match(TokenComma) {
		p.expect(TokenIdentifier, "expected value variable name")
		keyName = valueName
		valueName = p.prevToken.Literal
	}
	p.expect(TokenIn, "expected 'in' in iteration")

	p.beginScope()
	p.expression()
	iter := p.hiddenLocal("iter")
	if paren {
		p.expect(TokenRParen, "expected ')' after iteration clause")
	}

	p.emitOp(vm.OpPushNull)
	var key int
	if keyName == "" {
		key = p.hiddenLocal("key")
	} else {
		key = p.declareLocal(keyName)
		p.markInitialized()
	}
	p.emitOp(vm.OpPushNull)
	value := p.declareLocal(valueName)
	p.markInitialized()

	itern := p.identifierConstant("@itern")
	iterGet := p.identifierConstant("@iter")

	start := p.blob().Len()
	p.emitOpShort(vm.OpLocalGet, iter)
	p.emitOpShort(vm.OpLocalGet, key)
	p.emitOpShort(vm.OpCallMethod, itern)
	p.emitByte(1)
	p.emitOpShort(vm.OpLocalSet, key)
	exit := p.emitJump(vm.OpJumpIfFalse)
	p.emitOp(vm.OpPop)

	p.emitOpShort(vm.OpLocalGet, iter)
	p.emitOpShort(vm.OpLocalGet, key)
	p.emitOpShort(vm.OpCallMethod, iterGet)
	p.emitByte(1)
	p.emitOpShort(vm.OpLocalSet, value)
	p.emitOp(vm.OpPop)

	l := p.beginLoop(start, false)
	p.statement()
	p.emitLoop(start)

	p.patchJump(exit)
	p.emitOp(vm.OpPop)
	p.endLoop(l)
	p.endScope()
}

// ---------------------------------------------------------------------------
// switch
// ---------------------------------------------------------------------------

// switchStatement compiles a table-driven switch. Case labels must be
// literals; cases do not fall through.
func (p *Parser) switchStatement() {
	p.condition()
	p.expect(TokenLBrace, "expected '{' after switch subject")

	sw := p.s.NewSwitch()
	swConst := p.makeConstant(vm.FromObject(sw))
	sw.DefaultJump = -1
	p.emitOpShort(vm.OpSwitch, swConst)
	base := p.blob().Len()

	l := p.beginLoop(-1, true)
	var exits []int
	seenDefault := false
	for !p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) {
		switch {
		case p.match(TokenCase):
			for {
				key, ok := p.caseLabel()
				if ok {
					if _, dup := sw.Table.Get(key); dup {
						p.errorf("duplicate case label")
					}
					sw.Table.Set(key, vm.Number(float64(p.blob().Len()-base)))
				}
				if !p.match(TokenComma) {
					break
				}
			}
		case p.match(TokenDefault):
			if seenDefault {
				p.errorf("switch has more than one default case")
			}
			seenDefault = true
			sw.DefaultJump = p.blob().Len() - base
		default:
			p.errorAtCurrent("expected 'case' or 'default' in switch")
			p.nextToken()
			continue
		}
		p.expect(TokenColon, "expected ':' after case label")

		p.beginScope()
		for !p.curTokenIs(TokenCase) && !p.curTokenIs(TokenDefault) &&
			!p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) {
			p.declaration()
		}
		p.endScope()
		exits = append(exits, p.emitJump(vm.OpJumpNow))
	}
	p.expect(TokenRBrace, "expected '}' after switch body")

	for _, at := range exits {
		p.patchJump(at)
	}
	sw.ExitJump = p.blob().Len() - base
	p.endLoop(l)
}

// caseLabel parses a literal case key.
func (p *Parser) caseLabel() (vm.Value, bool) {
	negative := p.match(TokenMinus)
	p.nextToken()
	tok := p.prevToken
	switch tok.Type {
	case TokenNumber:
		n, err := ParseNumber(tok.Literal)
		if err != nil {
			p.errorf("invalid number literal '%s'", tok.Literal)
			return vm.Value{}, false
		}
		if negative {
			n = -n
		}
		return vm.Number(n), true
	case TokenString:
		if !negative {
			return p.s.String(tok.Literal), true
		}
	case TokenTrue, TokenFalse:
		if !negative {
			return vm.Bool(tok.Type == TokenTrue), true
		}
	case TokenNull:
		if !negative {
			return vm.Null(), true
		}
	}
	p.errorf("case label must be a literal")
	return vm.Value{}, false
}

// ---------------------------------------------------------------------------
// try / catch / finally
// ---------------------------------------------------------------------------

// tryStatement compiles
//
//	try { body } catch (Type e) { handler } finally { cleanup }
//
// The finally block runs with two hidden locals: the pending exception and
// a flag telling whether it must be raised again afterwards.
func (p *Parser) tryStatement() {
	if p.fs.tryDepth >= vm.MaxExceptionHandlers {
		p.errorf("too many nested try blocks")
	}
	p.emitOp(vm.OpTry)
	typeAt := p.emitShort(0)
	catchAt := p.emitShort(0)
	finallyAt := p.emitShort(0)
	p.fs.tryDepth++

	p.expect(TokenLBrace, "expected '{' after 'try'")
	p.beginScope()
	p.block()
	p.endScope()
	p.emitOp(vm.OpPopTry)
	p.fs.tryDepth--
	exit := p.emitJump(vm.OpJumpNow)

	typeName := "Exception"
	hasCatch := false
	if p.match(TokenCatch) {
		hasCatch = true
		p.blob().PatchShort(catchAt, p.blob().Len())
		p.emitOp(vm.OpPopTry)
		p.beginScope()

		paren := p.match(TokenLParen)
		varName := ""
		if p.curTokenIs(TokenIdentifier) {
			p.nextToken()
			varName = p.prevToken.Literal
			if p.curTokenIs(TokenIdentifier) {
				// catch (Type e)
				typeName = varName
				p.nextToken()
				varName = p.prevToken.Literal
			}
		}
		if paren {
			p.expect(TokenRParen, "expected ')' after catch clause")
		}
		// The exception was pushed at the handler's stack height, which is
		// the next local slot.
		if varName != "" {
			p.declareLocal(varName)
			p.markInitialized()
		} else {
			p.hiddenLocal("exception")
		}

		p.expect(TokenLBrace, "expected '{' after catch clause")
		p.block()
		p.endScope()
	}
	p.blob().PatchShort(typeAt, p.identifierConstant(typeName))

	if p.match(TokenFinally) {
		p.patchJump(exit)
		p.emitOp(vm.OpPushNull)
		p.emitOp(vm.OpPushFalse)

		p.blob().PatchShort(finallyAt, p.blob().Len())
		p.beginScope()
		exc := p.hiddenLocal("exception")
		pending := p.hiddenLocal("pending")

		p.expect(TokenLBrace, "expected '{' after 'finally'")
		p.block()

		p.emitOpShort(vm.OpLocalGet, pending)
		done := p.emitJump(vm.OpJumpIfFalse)
		p.emitOp(vm.OpPop)
		p.emitOpShort(vm.OpLocalGet, exc)
		p.emitOp(vm.OpPublishTry)
		p.patchJump(done)
		p.emitOp(vm.OpPop)
		p.endScope()
		return
	}
	if !hasCatch {
		p.errorAtCurrent("expected 'catch' or 'finally' after try block")
	}
	p.patchJump(exit)
}

// ---------------------------------------------------------------------------
// Simple statements
// ---------------------------------------------------------------------------

func (p *Parser) returnStatement() {
	if p.match(TokenSemicolon) || p.curToken.NewlineBefore ||
		p.curTokenIs(TokenRBrace) || p.curTokenIs(TokenEOF) {
		p.emitReturn()
		return
	}
	if p.fs.kind == vm.FuncKindInitializer {
		p.errorf("cannot return a value from a constructor")
	}
	p.expression()
	p.emitOp(vm.OpReturn)
	p.endStatement()
}

func (p *Parser) assertStatement() {
	p.expression()
	if p.match(TokenComma) {
		p.expression()
	} else {
		p.emitOp(vm.OpPushNull)
	}
	p.emitOp(vm.OpAssert)
	p.endStatement()
}

// importStatement compiles
//
//	import "path/to/mod" [as name]
//	import name [as alias]
//
// binding the module to name, which defaults to the file's base name.
func (p *Parser) importStatement() {
	var path string
	switch {
	case p.match(TokenString):
		path = p.prevToken.Literal
	case p.match(TokenIdentifier):
		path = p.prevToken.Literal
		for p.match(TokenDot) {
			p.expect(TokenIdentifier, "expected module name after '.'")
			path += "/" + p.prevToken.Literal
		}
	default:
		p.errorAtCurrent("expected module name after 'import'")
		return
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if p.match(TokenAs) {
		p.expect(TokenIdentifier, "expected name after 'as'")
		name = p.prevToken.Literal
	}

	p.emitOpShort(vm.OpImport, p.identifierConstant(path))
	if p.fs.scopeDepth > 0 {
		p.declareLocal(name)
		p.markInitialized()
	} else {
		p.emitOpShort(vm.OpGlobalDefine, p.identifierConstant(name))
	}
	p.endStatement()
}
