package compiler

import (
	"fmt"

	"scc/pkg/bytecode"
)

// PendingCall records a call site whose callee index is unknown until
// every function declaration has been seen.
type PendingCall struct {
	FuncIndex int    // caller function index
	CodePos   int    // index of the placeholder callee word
	Name      string // callee name
	ArgCount  int
}

// Parser consumes the token stream and emits bytecode directly into
// the current function's code buffer. Two tokens of lookahead
// distinguish assignment ("ident =") from an expression statement and
// a call ("ident (") from an identifier load.
//
// Grammar:
//
//	program     = { function }
//	function    = "int" IDENT "(" [ param { "," param } ] ")" block
//	param       = "int" IDENT
//	block       = "{" { statement } "}"
//	statement   = declaration | "return" expr ";" | if | while | block
//	            | IDENT "=" expr ";" | expr ";"
//	declaration = "int" IDENT [ "=" expr ] ";"
//	if          = "if" "(" expr ")" statement [ "else" statement ]
//	while       = "while" "(" expr ")" statement
//	expr        = equality
//	equality    = relational { ("==" | "!=") relational }
//	relational  = additive   { ("<" | "<=" | ">" | ">=") additive }
//	additive    = term       { ("+" | "-") term }
//	term        = unary      { ("*" | "/") unary }
//	unary       = "-" unary | primary
//	primary     = NUMBER | IDENT | IDENT "(" [ args ] ")" | "(" expr ")"
//	args        = expr { "," expr }
type Parser struct {
	lexer *Lexer
	tok   Token
	next  Token

	functions   []bytecode.Function
	funcIndex   map[string]int
	strings     []string
	stringIndex map[string]int
	locals      map[string]int // per-function name -> slot
	pending     []PendingCall
	current     int // index of the function being compiled, -1 outside
}

// NewParser builds a parser over src and primes the two-token
// lookahead window.
func NewParser(src string) (*Parser, error) {
	p := &Parser{
		lexer:       NewLexer(src),
		funcIndex:   make(map[string]int),
		stringIndex: make(map[string]int),
		current:     -1,
	}
	var err error
	if p.tok, err = p.lexer.Next(); err != nil {
		return nil, err
	}
	if p.next, err = p.lexer.Next(); err != nil {
		return nil, err
	}
	return p, nil
}

// Compile parses the whole program and resolves forward-referenced
// calls. The returned Program is ready for the VM or the payload
// encoder.
func (p *Parser) Compile() (*bytecode.Program, error) {
	for p.tok.Type != EOF {
		if err := p.parseFunction(); err != nil {
			return nil, err
		}
	}
	if err := p.resolveCalls(); err != nil {
		return nil, err
	}
	return &bytecode.Program{Functions: p.functions, Strings: p.strings}, nil
}

// errf wraps a parse error with the position of tok.
func (p *Parser) errf(tok Token, format string, args ...any) error {
	return fmt.Errorf("%d:%d: %s", tok.Line, tok.Col, fmt.Sprintf(format, args...))
}

// advance shifts the lookahead window by one token.
func (p *Parser) advance() error {
	p.tok = p.next
	var err error
	p.next, err = p.lexer.Next()
	return err
}

// match consumes the current token if it has the given type.
func (p *Parser) match(tt TokenType) (bool, error) {
	if p.tok.Type != tt {
		return false, nil
	}
	return true, p.advance()
}

// expect consumes the current token or fails with "expected ...".
func (p *Parser) expect(tt TokenType, what string) error {
	if p.tok.Type != tt {
		return p.errf(p.tok, "expected %s", what)
	}
	return p.advance()
}

// emit appends an opcode with no operand and returns its index.
func (p *Parser) emit(op bytecode.Op) int {
	fn := &p.functions[p.current]
	fn.Code = append(fn.Code, int32(op))
	return len(fn.Code) - 1
}

// emitOperand appends an opcode and one operand word, returning the
// index of the operand word (the position patch and PendingCall use).
func (p *Parser) emitOperand(op bytecode.Op, operand int32) int {
	fn := &p.functions[p.current]
	fn.Code = append(fn.Code, int32(op), operand)
	return len(fn.Code) - 1
}

// emitWord appends a bare operand word.
func (p *Parser) emitWord(w int32) {
	fn := &p.functions[p.current]
	fn.Code = append(fn.Code, w)
}

// patch rewrites the code word at pos, used to backfill jump targets.
func (p *Parser) patch(pos int, target int32) {
	p.functions[p.current].Code[pos] = target
}

func (p *Parser) codeSize() int32 {
	return int32(len(p.functions[p.current].Code))
}

func (p *Parser) parseFunction() error {
	if err := p.expect(INT, "'int'"); err != nil {
		return err
	}
	if p.tok.Type != IDENTIFIER {
		return p.errf(p.tok, "expected function name")
	}
	nameTok := p.tok
	name := p.tok.Lexeme
	if err := p.advance(); err != nil {
		return err
	}
	if err := p.expect(LPAREN, "'('"); err != nil {
		return err
	}
	var params []string
	if p.tok.Type != RPAREN {
		for {
			if err := p.expect(INT, "'int'"); err != nil {
				return err
			}
			if p.tok.Type != IDENTIFIER {
				return p.errf(p.tok, "expected parameter name")
			}
			params = append(params, p.tok.Lexeme)
			if err := p.advance(); err != nil {
				return err
			}
			ok, err := p.match(COMMA)
			if err != nil {
				return err
			}
			if !ok {
				break
			}
		}
	}
	if err := p.expect(RPAREN, "')'"); err != nil {
		return err
	}

	if _, dup := p.funcIndex[name]; dup {
		return p.errf(nameTok, "function already defined: %s", name)
	}
	idx := len(p.functions)
	p.funcIndex[name] = idx
	p.functions = append(p.functions, bytecode.Function{
		Name:      name,
		NumParams: len(params),
		NumLocals: len(params),
	})
	p.current = idx
	p.locals = make(map[string]int)
	for i, param := range params {
		p.locals[param] = i
	}

	if err := p.parseBlock(); err != nil {
		return err
	}

	// Guarantee an executable RET on every path.
	p.emitOperand(bytecode.OpPushInt, 0)
	p.emit(bytecode.OpRet)

	p.current = -1
	return nil
}

func (p *Parser) parseBlock() error {
	if err := p.expect(LBRACE, "'{'"); err != nil {
		return err
	}
	for p.tok.Type != RBRACE {
		if p.tok.Type == EOF {
			return p.errf(p.tok, "expected '}'")
		}
		if err := p.parseStatement(); err != nil {
			return err
		}
	}
	return p.expect(RBRACE, "'}'")
}

// parseStatement compiles one statement. Every statement leaves the
// evaluation stack net-zero.
func (p *Parser) parseStatement() error {
	switch p.tok.Type {
	case INT:
		return p.parseDeclaration()
	case RETURN:
		if err := p.advance(); err != nil {
			return err
		}
		if err := p.parseExpression(); err != nil {
			return err
		}
		if err := p.expect(SEMICOLON, "';'"); err != nil {
			return err
		}
		p.emit(bytecode.OpRet)
		return nil
	case IF:
		return p.parseIf()
	case WHILE:
		return p.parseWhile()
	case LBRACE:
		return p.parseBlock()
	}

	if p.tok.Type == IDENTIFIER && p.next.Type == ASSIGN {
		nameTok := p.tok
		if err := p.advance(); err != nil { // identifier
			return err
		}
		if err := p.advance(); err != nil { // '='
			return err
		}
		if err := p.parseExpression(); err != nil {
			return err
		}
		if err := p.expect(SEMICOLON, "';'"); err != nil {
			return err
		}
		idx, err := p.localSlot(nameTok)
		if err != nil {
			return err
		}
		p.emitOperand(bytecode.OpStore, int32(idx))
		return nil
	}

	if err := p.parseExpression(); err != nil {
		return err
	}
	if err := p.expect(SEMICOLON, "';'"); err != nil {
		return err
	}
	p.emit(bytecode.OpPop)
	return nil
}

func (p *Parser) parseDeclaration() error {
	if err := p.expect(INT, "'int'"); err != nil {
		return err
	}
	if p.tok.Type != IDENTIFIER {
		return p.errf(p.tok, "expected variable name")
	}
	nameTok := p.tok
	if err := p.advance(); err != nil {
		return err
	}
	idx, err := p.addLocal(nameTok)
	if err != nil {
		return err
	}
	ok, err := p.match(ASSIGN)
	if err != nil {
		return err
	}
	if ok {
		if err := p.parseExpression(); err != nil {
			return err
		}
		p.emitOperand(bytecode.OpStore, int32(idx))
	}
	return p.expect(SEMICOLON, "';'")
}

func (p *Parser) parseIf() error {
	if err := p.expect(IF, "'if'"); err != nil {
		return err
	}
	if err := p.expect(LPAREN, "'('"); err != nil {
		return err
	}
	if err := p.parseExpression(); err != nil {
		return err
	}
	if err := p.expect(RPAREN, "')'"); err != nil {
		return err
	}

	jmpFalsePos := p.emitOperand(bytecode.OpJmpIfFalse, 0)
	if err := p.parseStatement(); err != nil {
		return err
	}

	hasElse, err := p.match(ELSE)
	if err != nil {
		return err
	}
	if hasElse {
		jmpEndPos := p.emitOperand(bytecode.OpJmp, 0)
		p.patch(jmpFalsePos, p.codeSize())
		if err := p.parseStatement(); err != nil {
			return err
		}
		p.patch(jmpEndPos, p.codeSize())
	} else {
		p.patch(jmpFalsePos, p.codeSize())
	}
	return nil
}

func (p *Parser) parseWhile() error {
	if err := p.expect(WHILE, "'while'"); err != nil {
		return err
	}
	loopStart := p.codeSize()
	if err := p.expect(LPAREN, "'('"); err != nil {
		return err
	}
	if err := p.parseExpression(); err != nil {
		return err
	}
	if err := p.expect(RPAREN, "')'"); err != nil {
		return err
	}
	jmpFalsePos := p.emitOperand(bytecode.OpJmpIfFalse, 0)
	if err := p.parseStatement(); err != nil {
		return err
	}
	p.emitOperand(bytecode.OpJmp, loopStart)
	p.patch(jmpFalsePos, p.codeSize())
	return nil
}

func (p *Parser) parseExpression() error {
	return p.parseEquality()
}

func (p *Parser) parseEquality() error {
	if err := p.parseRelational(); err != nil {
		return err
	}
	for p.tok.Type == EQUALS || p.tok.Type == NOT_EQ {
		op := p.tok.Type
		if err := p.advance(); err != nil {
			return err
		}
		if err := p.parseRelational(); err != nil {
			return err
		}
		if op == EQUALS {
			p.emit(bytecode.OpEq)
		} else {
			p.emit(bytecode.OpNe)
		}
	}
	return nil
}

func (p *Parser) parseRelational() error {
	if err := p.parseAdditive(); err != nil {
		return err
	}
	for {
		var op bytecode.Op
		switch p.tok.Type {
		case LESS:
			op = bytecode.OpLt
		case LESS_EQ:
			op = bytecode.OpLe
		case GREATER:
			op = bytecode.OpGt
		case GREATER_EQ:
			op = bytecode.OpGe
		default:
			return nil
		}
		if err := p.advance(); err != nil {
			return err
		}
		if err := p.parseAdditive(); err != nil {
			return err
		}
		p.emit(op)
	}
}

func (p *Parser) parseAdditive() error {
	if err := p.parseTerm(); err != nil {
		return err
	}
	for p.tok.Type == PLUS || p.tok.Type == MINUS {
		op := p.tok.Type
		if err := p.advance(); err != nil {
			return err
		}
		if err := p.parseTerm(); err != nil {
			return err
		}
		if op == PLUS {
			p.emit(bytecode.OpAdd)
		} else {
			p.emit(bytecode.OpSub)
		}
	}
	return nil
}

func (p *Parser) parseTerm() error {
	if err := p.parseUnary(); err != nil {
		return err
	}
	for p.tok.Type == STAR || p.tok.Type == SLASH {
		op := p.tok.Type
		if err := p.advance(); err != nil {
			return err
		}
		if err := p.parseUnary(); err != nil {
			return err
		}
		if op == STAR {
			p.emit(bytecode.OpMul)
		} else {
			p.emit(bytecode.OpDiv)
		}
	}
	return nil
}

// parseUnary compiles unary minus as "operand * -1"; there is no
// dedicated negate opcode.
func (p *Parser) parseUnary() error {
	if p.tok.Type == MINUS {
		if err := p.advance(); err != nil {
			return err
		}
		if err := p.parseUnary(); err != nil {
			return err
		}
		p.emitOperand(bytecode.OpPushInt, -1)
		p.emit(bytecode.OpMul)
		return nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() error {
	switch p.tok.Type {
	case NUMBER:
		p.emitOperand(bytecode.OpPushInt, p.tok.Value)
		return p.advance()
	case IDENTIFIER:
		if p.next.Type == LPAREN {
			return p.parseCall()
		}
		nameTok := p.tok
		if err := p.advance(); err != nil {
			return err
		}
		idx, err := p.localSlot(nameTok)
		if err != nil {
			return err
		}
		p.emitOperand(bytecode.OpLoad, int32(idx))
		return nil
	case LPAREN:
		if err := p.advance(); err != nil {
			return err
		}
		if err := p.parseExpression(); err != nil {
			return err
		}
		return p.expect(RPAREN, "')'")
	case STRING:
		return p.errf(p.tok, "string literals are only allowed in print(...)")
	}
	return p.errf(p.tok, "expected expression")
}

// parseCall compiles a call expression. print is a special form, not a
// user function: there is no string type at runtime, so print("...")
// cannot be desugared into a normal call. Both print forms push a 0
// sentinel so the surrounding expression context sees one value.
func (p *Parser) parseCall() error {
	name := p.tok.Lexeme
	if err := p.advance(); err != nil {
		return err
	}
	if err := p.expect(LPAREN, "'('"); err != nil {
		return err
	}

	if name == "print" {
		if p.tok.Type == STRING {
			idx := p.addString(p.tok.Lexeme)
			if err := p.advance(); err != nil {
				return err
			}
			if err := p.expect(RPAREN, "')'"); err != nil {
				return err
			}
			p.emitOperand(bytecode.OpPrintStr, int32(idx))
			p.emitOperand(bytecode.OpPushInt, 0)
			return nil
		}
		if p.tok.Type == RPAREN {
			return p.errf(p.tok, "print expects 1 argument")
		}
		if err := p.parseExpression(); err != nil {
			return err
		}
		if err := p.expect(RPAREN, "')'"); err != nil {
			return err
		}
		p.emit(bytecode.OpPrint)
		p.emitOperand(bytecode.OpPushInt, 0)
		return nil
	}

	argCount := 0
	if p.tok.Type != RPAREN {
		for {
			if p.tok.Type == STRING {
				return p.errf(p.tok, "string literals are only allowed in print(...)")
			}
			if err := p.parseExpression(); err != nil {
				return err
			}
			argCount++
			ok, err := p.match(COMMA)
			if err != nil {
				return err
			}
			if !ok {
				break
			}
		}
	}
	if err := p.expect(RPAREN, "')'"); err != nil {
		return err
	}

	callPos := p.emitOperand(bytecode.OpCall, 0)
	p.emitWord(int32(argCount))
	p.pending = append(p.pending, PendingCall{
		FuncIndex: p.current,
		CodePos:   callPos,
		Name:      name,
		ArgCount:  argCount,
	})
	return nil
}

// addLocal assigns the next slot index to a newly declared variable.
// Slots are function-wide; redeclaration is an error.
func (p *Parser) addLocal(nameTok Token) (int, error) {
	name := nameTok.Lexeme
	if _, dup := p.locals[name]; dup {
		return 0, p.errf(nameTok, "variable already defined: %s", name)
	}
	fn := &p.functions[p.current]
	idx := fn.NumLocals
	fn.NumLocals++
	p.locals[name] = idx
	return idx, nil
}

// addString interns a string literal, so identical literals share one
// string-pool slot.
func (p *Parser) addString(s string) int {
	if idx, ok := p.stringIndex[s]; ok {
		return idx
	}
	idx := len(p.strings)
	p.strings = append(p.strings, s)
	p.stringIndex[s] = idx
	return idx
}

func (p *Parser) localSlot(nameTok Token) (int, error) {
	idx, ok := p.locals[nameTok.Lexeme]
	if !ok {
		return 0, p.errf(nameTok, "unknown variable: %s", nameTok.Lexeme)
	}
	return idx, nil
}

// resolveCalls patches every pending call site with the callee's
// resolved function index and checks arity. Must run before the
// program is encoded or executed.
func (p *Parser) resolveCalls() error {
	for _, call := range p.pending {
		idx, ok := p.funcIndex[call.Name]
		if !ok {
			return fmt.Errorf("unknown function: %s", call.Name)
		}
		if p.functions[idx].NumParams != call.ArgCount {
			return fmt.Errorf("function %s expects %d args, got %d",
				call.Name, p.functions[idx].NumParams, call.ArgCount)
		}
		p.functions[call.FuncIndex].Code[call.CodePos] = int32(idx)
	}
	return nil
}
