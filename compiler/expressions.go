package compiler

import (
	"github.com/chazu/neon/vm"
)

// ---------------------------------------------------------------------------
// Precedence climbing
// ---------------------------------------------------------------------------

type precedence int

const (
	precNone precedence = iota
	precAssignment
	precConditional // ?:
	precOr
	precAnd
	precEquality   // == !=
	precComparison // < > <= >= instanceof
	precBitOr
	precBitXor
	precBitAnd
	precShift
	precRange // ..
	precTerm
	precFactor
	precPower
	precUnary
	precCall
	precPrimary
)

type (
	prefixFn func(p *Parser, canAssign bool)
	infixFn  func(p *Parser, canAssign bool)
)

type parseRule struct {
	prefix prefixFn
	infix  infixFn
	prec   precedence
}

var rules map[TokenType]parseRule

func init() {
	rules = map[TokenType]parseRule{
		TokenLParen:        {(*Parser).grouping, (*Parser).call, precCall},
		TokenLBracket:      {(*Parser).arrayLiteral, (*Parser).index, precCall},
		TokenLBrace:        {(*Parser).dictLiteral, nil, precNone},
		TokenDot:           {nil, (*Parser).dot, precCall},
		TokenRange:         {nil, (*Parser).binary, precRange},
		TokenQuestion:      {nil, (*Parser).conditional, precConditional},
		TokenMinus:         {(*Parser).unary, (*Parser).binary, precTerm},
		TokenPlus:          {(*Parser).unary, (*Parser).binary, precTerm},
		TokenStar:          {nil, (*Parser).binary, precFactor},
		TokenSlash:         {nil, (*Parser).binary, precFactor},
		TokenFloorDiv:      {nil, (*Parser).binary, precFactor},
		TokenPercent:       {nil, (*Parser).binary, precFactor},
		TokenPow:           {nil, (*Parser).binary, precPower},
		TokenAmp:           {nil, (*Parser).binary, precBitAnd},
		TokenPipe:          {nil, (*Parser).binary, precBitOr},
		TokenCaret:         {nil, (*Parser).binary, precBitXor},
		TokenShl:           {nil, (*Parser).binary, precShift},
		TokenShr:           {nil, (*Parser).binary, precShift},
		TokenTilde:         {(*Parser).unary, nil, precNone},
		TokenBang:          {(*Parser).unary, nil, precNone},
		TokenEqual:         {nil, (*Parser).binary, precEquality},
		TokenNotEqual:      {nil, (*Parser).binary, precEquality},
		TokenLess:          {nil, (*Parser).binary, precComparison},
		TokenLessEqual:     {nil, (*Parser).binary, precComparison},
		TokenGreater:       {nil, (*Parser).binary, precComparison},
		TokenGreaterEqual:  {nil, (*Parser).binary, precComparison},
		TokenInstanceOf:    {nil, (*Parser).binary, precComparison},
		TokenAnd:           {nil, (*Parser).and, precAnd},
		TokenAndAnd:        {nil, (*Parser).and, precAnd},
		TokenOr:            {nil, (*Parser).or, precOr},
		TokenOrOr:          {nil, (*Parser).or, precOr},
		TokenIncrement:     {(*Parser).prefixUpdate, nil, precNone},
		TokenDecrement:     {(*Parser).prefixUpdate, nil, precNone},
		TokenIdentifier:    {(*Parser).variable, nil, precNone},
		TokenString:        {(*Parser).stringLiteral, nil, precNone},
		TokenInterpolation: {(*Parser).interpolation, nil, precNone},
		TokenNumber:        {(*Parser).number, nil, precNone},
		TokenTrue:          {(*Parser).literal, nil, precNone},
		TokenFalse:         {(*Parser).literal, nil, precNone},
		TokenNull:          {(*Parser).literal, nil, precNone},
		TokenEmpty:         {(*Parser).literal, nil, precNone},
		TokenThis:          {(*Parser).this, nil, precNone},
		TokenSuper:         {(*Parser).super, nil, precNone},
		TokenFunction:      {(*Parser).functionLiteral, nil, precNone},
		TokenTypeof:        {(*Parser).typeof, nil, precNone},
		TokenNew:           {(*Parser).newExpr, nil, precNone},
	}
}

func getRule(t TokenType) parseRule { return rules[t] }

// infixApplies reports whether the current token continues the
// expression. A ( or [ after a line break starts a new statement instead.
func (p *Parser) infixApplies(prec precedence) bool {
	tok := p.curToken
	if (tok.Type == TokenLParen || tok.Type == TokenLBracket) && tok.NewlineBefore {
		return false
	}
	return prec <= getRule(tok.Type).prec
}

func (p *Parser) parsePrecedence(prec precedence) {
	p.nextToken()
	prefix := getRule(p.prevToken.Type).prefix
	if prefix == nil {
		p.errorf("expected expression, got '%s'", p.prevToken.Literal)
		return
	}
	canAssign := prec <= precAssignment
	prefix(p, canAssign)

	for p.infixApplies(prec) {
		p.afterThis = p.prevToken.Type == TokenThis
		p.nextToken()
		getRule(p.prevToken.Type).infix(p, canAssign)
	}
	if canAssign && isAssignOp(p.curToken.Type) {
		p.nextToken()
		p.errorf("invalid assignment target")
	}
}

func (p *Parser) expression() { p.parsePrecedence(precAssignment) }

// ---------------------------------------------------------------------------
// Assignment helpers
// ---------------------------------------------------------------------------

var compoundOps = map[TokenType]vm.Opcode{
	TokenPlusAssign:    vm.OpAdd,
	TokenMinusAssign:   vm.OpSub,
	TokenStarAssign:    vm.OpMul,
	TokenSlashAssign:   vm.OpDiv,
	TokenPercentAssign: vm.OpMod,
	TokenPowAssign:     vm.OpPow,
	TokenAmpAssign:     vm.OpBitAnd,
	TokenPipeAssign:    vm.OpBitOr,
	TokenCaretAssign:   vm.OpBitXor,
	TokenShlAssign:     vm.OpShl,
	TokenShrAssign:     vm.OpShr,
}

func isAssignOp(t TokenType) bool {
	if t == TokenAssign {
		return true
	}
	_, ok := compoundOps[t]
	return ok
}

// assignKind classifies what follows an assignable expression.
type assignKind int

const (
	assignNone assignKind = iota
	assignPlain
	assignCompound
	assignIncrement
	assignDecrement
)

// takeAssignment consumes a postfix ++/--, or an assignment operator when
// the target may be assigned.
func (p *Parser) takeAssignment(canAssign bool) (assignKind, vm.Opcode) {
	t := p.curToken.Type
	if (t == TokenIncrement || t == TokenDecrement) && !p.curToken.NewlineBefore {
		p.nextToken()
		if t == TokenIncrement {
			return assignIncrement, vm.OpAdd
		}
		return assignDecrement, vm.OpSub
	}
	if !canAssign {
		return assignNone, 0
	}
	if t == TokenAssign {
		p.nextToken()
		return assignPlain, 0
	}
	if op, ok := compoundOps[t]; ok {
		p.nextToken()
		return assignCompound, op
	}
	return assignNone, 0
}

// emitUpdate computes the new value from the current one on the stack.
func (p *Parser) emitUpdate(kind assignKind, op vm.Opcode) {
	if kind == assignCompound {
		p.expression()
	} else {
		p.emitOp(vm.OpPushOne)
	}
	p.emitOp(op)
}

// ---------------------------------------------------------------------------
// Variables
// ---------------------------------------------------------------------------

func (p *Parser) variable(canAssign bool) {
	p.namedVariable(p.prevToken.Literal, canAssign)
}

func (p *Parser) namedVariable(name string, canAssign bool) {
	var getOp, setOp vm.Opcode
	arg := resolveLocal(p, p.fs, name)
	switch {
	case arg != -1:
		getOp, setOp = vm.OpLocalGet, vm.OpLocalSet
	default:
		if arg = resolveUpvalue(p, p.fs, name); arg != -1 {
			getOp, setOp = vm.OpUpvalueGet, vm.OpUpvalueSet
		} else {
			arg = p.identifierConstant(name)
			getOp, setOp = vm.OpGlobalGet, vm.OpGlobalSet
		}
	}

	kind, op := p.takeAssignment(canAssign)
	if kind != assignNone && p.isConstName(name) {
		p.errorf("cannot assign to constant '%s'", name)
	}
	switch kind {
	case assignPlain:
		p.expression()
		p.emitOpShort(setOp, arg)
	case assignCompound, assignIncrement, assignDecrement:
		p.emitOpShort(getOp, arg)
		p.emitUpdate(kind, op)
		p.emitOpShort(setOp, arg)
	default:
		p.emitOpShort(getOp, arg)
	}
}

// prefixUpdate compiles ++x and --x, which yield the new value.
func (p *Parser) prefixUpdate(_ bool) {
	op := vm.OpAdd
	if p.prevToken.Type == TokenDecrement {
		op = vm.OpSub
	}
	switch {
	case p.match(TokenIdentifier):
		name := p.prevToken.Literal
		if p.isConstName(name) {
			p.errorf("cannot assign to constant '%s'", name)
		}
		getOp, setOp := vm.OpGlobalGet, vm.OpGlobalSet
		arg := resolveLocal(p, p.fs, name)
		if arg != -1 {
			getOp, setOp = vm.OpLocalGet, vm.OpLocalSet
		} else if arg = resolveUpvalue(p, p.fs, name); arg != -1 {
			getOp, setOp = vm.OpUpvalueGet, vm.OpUpvalueSet
		} else {
			arg = p.identifierConstant(name)
		}
		// ++a.b and ++a[i] are written with the postfix forms.
		p.emitOpShort(getOp, arg)
		p.emitOp(vm.OpPushOne)
		p.emitOp(op)
		p.emitOpShort(setOp, arg)
	default:
		p.errorAtCurrent("expected variable name after prefix operator")
	}
}

func (p *Parser) this(_ bool) {
	if p.cls == nil {
		p.errorf("cannot use 'this' outside of a class")
		return
	}
	p.namedVariable("this", false)
}

func (p *Parser) super(_ bool) {
	switch {
	case p.cls == nil:
		p.errorf("cannot use 'super' outside of a class")
		return
	case !p.cls.hasSuperclass:
		p.errorf("cannot use 'super' in a class without a superclass")
		return
	}

	if p.curTokenIs(TokenLParen) {
		// super(args) runs the superclass constructor on this.
		p.nextToken()
		p.namedVariable("this", false)
		argc := p.argumentList()
		p.namedVariable("super", false)
		p.emitOp(vm.OpInvokeSuperSelf)
		p.emitByte(argc)
		return
	}

	p.expect(TokenDot, "expected '.' or '(' after 'super'")
	p.expect(TokenIdentifier, "expected superclass method name")
	name := p.identifierConstant(p.prevToken.Literal)
	p.namedVariable("this", false)
	if p.curTokenIs(TokenLParen) && !p.curToken.NewlineBefore {
		p.nextToken()
		argc := p.argumentList()
		p.namedVariable("super", false)
		p.emitOpShort(vm.OpInvokeSuper, name)
		p.emitByte(argc)
		return
	}
	p.namedVariable("super", false)
	p.emitOpShort(vm.OpGetSuper, name)
}

// ---------------------------------------------------------------------------
// Literals
// ---------------------------------------------------------------------------

func (p *Parser) number(_ bool) {
	n, err := ParseNumber(p.prevToken.Literal)
	if err != nil {
		p.errorf("invalid number literal '%s'", p.prevToken.Literal)
		return
	}
	p.emitConstant(vm.Number(n))
}

func (p *Parser) stringLiteral(_ bool) {
	p.emitConstant(p.s.String(p.prevToken.Literal))
}

// interpolation compiles "a ${x} b ${y} c" as "a " + x + " b " + y + " c",
// stringifying each embedded expression.
func (p *Parser) interpolation(_ bool) {
	p.emitConstant(p.s.String(p.prevToken.Literal))
	for {
		p.expression()
		p.emitOp(vm.OpStringify)
		p.emitOp(vm.OpAdd)
		if p.match(TokenInterpolation) {
			if p.prevToken.Literal != "" {
				p.emitConstant(p.s.String(p.prevToken.Literal))
				p.emitOp(vm.OpAdd)
			}
			continue
		}
		if !p.expect(TokenString, "unterminated string interpolation") {
			return
		}
		if p.prevToken.Literal != "" {
			p.emitConstant(p.s.String(p.prevToken.Literal))
			p.emitOp(vm.OpAdd)
		}
		return
	}
}

func (p *Parser) literal(_ bool) {
	switch p.prevToken.Type {
	case TokenTrue:
		p.emitOp(vm.OpPushTrue)
	case TokenFalse:
		p.emitOp(vm.OpPushFalse)
	case TokenNull:
		p.emitOp(vm.OpPushNull)
	case TokenEmpty:
		p.emitOp(vm.OpPushEmpty)
	}
}

func (p *Parser) arrayLiteral(_ bool) {
	count := 0
	for !p.curTokenIs(TokenRBracket) && !p.curTokenIs(TokenEOF) {
		p.expression()
		count++
		if !p.match(TokenComma) {
			break
		}
	}
	p.expect(TokenRBracket, "expected ']' after array elements")
	p.emitOpShort(vm.OpMakeArray, count)
}

// dictLiteral compiles {k: v, ...}. A bare identifier key is taken as its
// name, as in {name: "x"}.
func (p *Parser) dictLiteral(_ bool) {
	count := 0
	for !p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) {
		if p.curTokenIs(TokenIdentifier) && p.peekTokenIs(TokenColon) {
			p.nextToken()
			p.emitConstant(p.s.String(p.prevToken.Literal))
		} else {
			p.expression()
		}
		p.expect(TokenColon, "expected ':' after dictionary key")
		p.expression()
		count++
		if !p.match(TokenComma) {
			break
		}
	}
	p.expect(TokenRBrace, "expected '}' after dictionary entries")
	p.emitOpShort(vm.OpMakeDict, count)
}

func (p *Parser) functionLiteral(_ bool) {
	p.function(vm.FuncKindAnonymous, "")
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

func (p *Parser) grouping(_ bool) {
	p.expression()
	p.expect(TokenRParen, "expected ')' after expression")
}

func (p *Parser) unary(_ bool) {
	opType := p.prevToken.Type
	p.parsePrecedence(precUnary)
	switch opType {
	case TokenMinus:
		p.emitOp(vm.OpNegate)
	case TokenBang:
		p.emitOp(vm.OpNot)
	case TokenTilde:
		p.emitOp(vm.OpBitNot)
	}
}

func (p *Parser) typeof(_ bool) {
	p.parsePrecedence(precUnary)
	p.emitOp(vm.OpTypeof)
}

// newExpr accepts "new Class(args)" as a plain constructor call.
func (p *Parser) newExpr(_ bool) {
	p.parsePrecedence(precCall)
}

var binaryOps = map[TokenType][]vm.Opcode{
	TokenPlus:         {vm.OpAdd},
	TokenMinus:        {vm.OpSub},
	TokenStar:         {vm.OpMul},
	TokenSlash:        {vm.OpDiv},
	TokenFloorDiv:     {vm.OpFloorDiv},
	TokenPercent:      {vm.OpMod},
	TokenPow:          {vm.OpPow},
	TokenAmp:          {vm.OpBitAnd},
	TokenPipe:         {vm.OpBitOr},
	TokenCaret:        {vm.OpBitXor},
	TokenShl:          {vm.OpShl},
	TokenShr:          {vm.OpShr},
	TokenEqual:        {vm.OpEqual},
	TokenNotEqual:     {vm.OpEqual, vm.OpNot},
	TokenLess:         {vm.OpLess},
	TokenLessEqual:    {vm.OpGreater, vm.OpNot},
	TokenGreater:      {vm.OpGreater},
	TokenGreaterEqual: {vm.OpLess, vm.OpNot},
	TokenInstanceOf:   {vm.OpInstanceOf},
	TokenRange:        {vm.OpMakeRange},
}

func (p *Parser) binary(_ bool) {
	opType := p.prevToken.Type
	rule := getRule(opType)
	if opType == TokenPow {
		// right associative
		p.parsePrecedence(rule.prec)
	} else {
		p.parsePrecedence(rule.prec + 1)
	}
	p.emitOps(binaryOps[opType]...)
}

func (p *Parser) and(_ bool) {
	end := p.emitJump(vm.OpJumpIfFalse)
	p.emitOp(vm.OpPop)
	p.parsePrecedence(precAnd)
	p.patchJump(end)
}

func (p *Parser) or(_ bool) {
	elseJump := p.emitJump(vm.OpJumpIfFalse)
	end := p.emitJump(vm.OpJumpNow)
	p.patchJump(elseJump)
	p.emitOp(vm.OpPop)
	p.parsePrecedence(precOr)
	p.patchJump(end)
}

func (p *Parser) conditional(_ bool) {
	elseJump := p.emitJump(vm.OpJumpIfFalse)
	p.emitOp(vm.OpPop)
	p.parsePrecedence(precConditional)
	end := p.emitJump(vm.OpJumpNow)
	p.expect(TokenColon, "expected ':' in conditional expression")
	p.patchJump(elseJump)
	p.emitOp(vm.OpPop)
	p.parsePrecedence(precConditional)
	p.patchJump(end)
}

// ---------------------------------------------------------------------------
// Calls, properties and indexing
// ---------------------------------------------------------------------------

func (p *Parser) argumentList() int {
	argc := 0
	for !p.curTokenIs(TokenRParen) && !p.curTokenIs(TokenEOF) {
		p.expression()
		if argc == maxArgs {
			p.errorf("cannot have more than %d arguments", maxArgs)
		}
		argc++
		if !p.match(TokenComma) {
			break
		}
	}
	p.expect(TokenRParen, "expected ')' after arguments")
	return argc
}

func (p *Parser) call(_ bool) {
	argc := p.argumentList()
	p.emitOp(vm.OpCallFunction)
	p.emitByte(argc)
}

func (p *Parser) dot(canAssign bool) {
	onThis := p.afterThis
	p.expect(TokenIdentifier, "expected property name after '.'")
	name := p.identifierConstant(p.prevToken.Literal)

	if p.curTokenIs(TokenLParen) && !p.curToken.NewlineBefore {
		p.nextToken()
		argc := p.argumentList()
		if onThis {
			p.emitOpShort(vm.OpInvokeThis, name)
		} else {
			p.emitOpShort(vm.OpCallMethod, name)
		}
		p.emitByte(argc)
		return
	}

	kind, op := p.takeAssignment(canAssign)
	switch kind {
	case assignPlain:
		p.expression()
		p.emitOpShort(vm.OpPropertySet, name)
	case assignCompound, assignIncrement, assignDecrement:
		p.emitOp(vm.OpDup)
		p.emitOpShort(vm.OpPropertyGet, name)
		p.emitUpdate(kind, op)
		p.emitOpShort(vm.OpPropertySet, name)
	default:
		if onThis {
			p.emitOpShort(vm.OpPropertyGetSelf, name)
		} else {
			p.emitOpShort(vm.OpPropertyGet, name)
		}
	}
}

// index compiles a[i], a[i:j] and their assignments.
func (p *Parser) index(canAssign bool) {
	if p.match(TokenColon) {
		p.emitOp(vm.OpPushNull)
		p.sliceUpper()
		return
	}
	p.expression()
	if p.match(TokenColon) {
		p.sliceUpper()
		return
	}
	p.expect(TokenRBracket, "expected ']' after index")

	kind, op := p.takeAssignment(canAssign)
	switch kind {
	case assignPlain:
		p.expression()
		p.emitOp(vm.OpIndexSet)
	case assignCompound, assignIncrement, assignDecrement:
		p.emitOp(vm.OpIndexGet)
		p.emitByte(1)
		p.emitUpdate(kind, op)
		p.emitOp(vm.OpIndexSet)
	default:
		p.emitOp(vm.OpIndexGet)
		p.emitByte(0)
	}
}

func (p *Parser) sliceUpper() {
	if p.curTokenIs(TokenRBracket) {
		p.emitOp(vm.OpPushNull)
	} else {
		p.expression()
	}
	p.expect(TokenRBracket, "expected ']' after slice")
	p.emitOp(vm.OpIndexGetRanged)
	p.emitByte(0)
}
