// Package parser turns rule text into an ast.Lambda.
//
// Grammar (lowest to highest precedence):
//
//	lambda         → IDENT "=>" expr | "(" IDENT ("," IDENT)* ")" "=>" expr
//	expr           → or ("?" expr ":" expr)?
//	or             → and ("||" and)*
//	and            → equality ("&&" equality)*
//	equality       → relational (("==" | "!=") relational)*
//	relational     → additive (("<" | "<=" | ">" | ">=") additive)*
//	additive       → multiplicative (("+" | "-") multiplicative)*
//	multiplicative → unary (("*" | "/" | "%") unary)*
//	unary          → ("!" | "-") unary | postfix
//	postfix        → primary ("." IDENT ("(" args? ")")? | "[" expr "]")*
//	primary        → NUMBER | STRING | "true" | "false" | IDENT ("(" args? ")")? | "(" expr ")"
//	args           → (lambda | expr) ("," (lambda | expr))*
//
// The parser only checks syntax and scoping. Member names, method names and
// operand kinds are checked by the expr package against a schema.
package parser

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/budgetlog/logbook/ast"
)

// Resolver looks up the value of a free identifier. The value is captured in
// the tree when the rule is parsed.
type Resolver func(name string) (any, bool)

// Parser is a recursive-descent parser over a token slice.
type Parser struct {
	source  string
	tokens  []Token
	pos     int
	scope   []*ast.Param
	resolve Resolver
}

// Option configures a parse.
type Option func(*Parser)

// WithResolver sets the resolver for free identifiers. Without one, any
// identifier that is not a lambda parameter is an error.
func WithResolver(r Resolver) Option {
	return func(p *Parser) {
		p.resolve = r
	}
}

// Parse parses source as a lambda with exactly arity parameters.
func Parse(source string, arity int, opts ...Option) (*ast.Lambda, error) {
	p := &Parser{
		source: source,
		tokens: NewLexer(source).ScanAll(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if !p.atLambda() {
		return nil, p.errorf(p.peek(), "rule must have the shape %s", shape(arity))
	}

	lambda, err := p.parseLambda()
	if err != nil {
		return nil, err
	}
	if len(lambda.Params) != arity {
		return nil, p.errorf(p.tokens[0], "rule must have the shape %s, got %d parameter(s)", shape(arity), len(lambda.Params))
	}

	if tok := p.peek(); tok.Type != EOF {
		return nil, p.unexpected(tok, "end of rule")
	}

	return lambda, nil
}

func shape(arity int) string {
	switch arity {
	case 1:
		return "x => expression"
	case 2:
		return "(x, y) => expression"
	}
	names := make([]string, arity)
	for i := range names {
		names[i] = "p" + string(rune('1'+i))
	}
	return "(" + strings.Join(names, ", ") + ") => expression"
}

// atLambda reports whether the tokens at the current position start a lambda.
func (p *Parser) atLambda() bool {
	if p.peekAt(0).Type == IDENT && p.peekAt(1).Type == ARROW {
		return true
	}
	if p.peekAt(0).Type != LPAREN {
		return false
	}
	i := 1
	for {
		if p.peekAt(i).Type != IDENT {
			return false
		}
		i++
		switch p.peekAt(i).Type {
		case COMMA:
			i++
		case RPAREN:
			return p.peekAt(i+1).Type == ARROW
		default:
			return false
		}
	}
}

// parseLambda parses a lambda and declares its parameters for the body.
func (p *Parser) parseLambda() (*ast.Lambda, error) {
	start := p.peek()
	var names []Token

	if p.peek().Type == IDENT {
		names = append(names, p.advance())
	} else {
		p.advance() // consume '('
		for {
			names = append(names, p.advance())
			if p.advance().Type == RPAREN {
				break
			}
		}
	}
	p.advance() // consume '=>'

	lambda := &ast.Lambda{Pos: p.position(start)}
	outer := len(p.scope)
	for _, tok := range names {
		name := tok.String(p.source)
		if p.lookupParam(name) != nil {
			return nil, p.errorf(tok, "parameter %q is already declared", name)
		}
		param := &ast.Param{Pos: p.position(tok), Name: name, Index: len(p.scope)}
		p.scope = append(p.scope, param)
		lambda.Params = append(lambda.Params, param)
	}

	body, err := p.parseExpr()
	p.scope = p.scope[:outer]
	if err != nil {
		return nil, err
	}
	lambda.Body = body

	return lambda, nil
}

// parseExpr parses a ternary conditional or anything binding tighter.
func (p *Parser) parseExpr() (ast.Node, error) {
	cond, err := p.parseBinary(1)
	if err != nil {
		return nil, err
	}
	if p.peek().Type != QUESTION {
		return cond, nil
	}
	p.advance() // consume '?'

	then, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.Type != COLON {
		return nil, p.unexpected(tok, `":"`)
	}
	p.advance()

	els, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &ast.Conditional{Pos: cond.Position(), Cond: cond, Then: then, Else: els}, nil
}

var binaryOperators = map[TokenType]ast.Operator{
	OR:      ast.OpOr,
	AND:     ast.OpAnd,
	EQ:      ast.OpEq,
	NE:      ast.OpNe,
	LT:      ast.OpLt,
	LE:      ast.OpLe,
	GT:      ast.OpGt,
	GE:      ast.OpGe,
	PLUS:    ast.OpAdd,
	MINUS:   ast.OpSub,
	STAR:    ast.OpMul,
	SLASH:   ast.OpDiv,
	PERCENT: ast.OpMod,
}

// parseBinary is precedence climbing over binary operators; all of them are
// left associative.
func (p *Parser) parseBinary(minPrec int) (ast.Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for {
		op, ok := binaryOperators[p.peek().Type]
		if !ok || op.Precedence() < minPrec {
			break
		}
		p.advance() // consume operator

		right, err := p.parseBinary(op.Precedence() + 1)
		if err != nil {
			return nil, err
		}
		left = &ast.Binary{Pos: left.Position(), Op: op, Left: left, Right: right}
	}

	return left, nil
}

func (p *Parser) parseUnary() (ast.Node, error) {
	tok := p.peek()
	switch tok.Type {
	case BANG:
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.Unary{Pos: p.position(tok), Op: ast.OpNot, Operand: operand}, nil

	case MINUS:
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		// Fold negative number literals so they print as written
		if lit, ok := operand.(*ast.Literal); ok && lit.Kind == ast.NumberLiteral {
			return &ast.Literal{Pos: p.position(tok), Kind: ast.NumberLiteral, Number: lit.Number.Neg()}, nil
		}
		return &ast.Unary{Pos: p.position(tok), Op: ast.OpNeg, Operand: operand}, nil
	}

	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (ast.Node, error) {
	n, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for {
		switch p.peek().Type {
		case DOT:
			p.advance()
			name := p.peek()
			if name.Type != IDENT {
				return nil, p.unexpected(name, "member name")
			}
			p.advance()

			if p.peek().Type == LPAREN {
				args, err := p.parseArgs()
				if err != nil {
					return nil, err
				}
				n = &ast.Call{Pos: p.position(name), Target: n, Method: name.String(p.source), Args: args}
				continue
			}
			n = &ast.Member{Pos: p.position(name), Target: n, Name: name.String(p.source)}

		case LBRACKET:
			open := p.advance()
			key, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if tok := p.peek(); tok.Type != RBRACKET {
				return nil, p.unexpected(tok, `"]"`)
			}
			p.advance()
			n = &ast.Index{Pos: p.position(open), Target: n, Key: key}

		default:
			return n, nil
		}
	}
}

func (p *Parser) parsePrimary() (ast.Node, error) {
	tok := p.peek()

	switch tok.Type {
	case NUMBER:
		p.advance()
		text := tok.String(p.source)
		num, err := decimal.NewFromString(text)
		if err != nil {
			return nil, p.errorf(tok, "invalid number %q", text)
		}
		return &ast.Literal{Pos: p.position(tok), Kind: ast.NumberLiteral, Number: num}, nil

	case STRING:
		p.advance()
		return &ast.Literal{Pos: p.position(tok), Kind: ast.StringLiteral, String: unquote(tok.String(p.source))}, nil

	case TRUE, FALSE:
		p.advance()
		return &ast.Literal{Pos: p.position(tok), Kind: ast.BoolLiteral, Bool: tok.Type == TRUE}, nil

	case IDENT:
		return p.parseIdent()

	case LPAREN:
		if p.atLambda() {
			return nil, p.errorf(tok, "lambda is only allowed as a method argument")
		}
		p.advance()
		n, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if tok := p.peek(); tok.Type != RPAREN {
			return nil, p.unexpected(tok, `")"`)
		}
		p.advance()
		return n, nil
	}

	return nil, p.unexpected(tok, "expression")
}

// parseIdent resolves an identifier to a parameter, a global call or a captured value.
func (p *Parser) parseIdent() (ast.Node, error) {
	tok := p.advance()
	name := tok.String(p.source)

	if p.peek().Type == ARROW {
		return nil, p.errorf(tok, "lambda is only allowed as a method argument")
	}

	if p.peek().Type == LPAREN {
		args, err := p.parseArgs()
		if err != nil {
			return nil, err
		}
		return &ast.Call{Pos: p.position(tok), Method: name, Args: args}, nil
	}

	if param := p.lookupParam(name); param != nil {
		return &ast.Param{Pos: p.position(tok), Name: param.Name, Index: param.Index}, nil
	}

	if p.resolve != nil {
		if value, ok := p.resolve(name); ok {
			return &ast.Captured{Pos: p.position(tok), Name: name, Value: value}, nil
		}
	}

	return nil, p.errorf(tok, "undefined identifier %q", name)
}

// parseArgs parses a parenthesised argument list; arguments may be lambdas.
func (p *Parser) parseArgs() ([]ast.Node, error) {
	p.advance() // consume '('

	var args []ast.Node
	if p.peek().Type == RPAREN {
		p.advance()
		return args, nil
	}

	for {
		var (
			arg ast.Node
			err error
		)
		if p.atLambda() {
			arg, err = p.parseLambda()
		} else {
			arg, err = p.parseExpr()
		}
		if err != nil {
			return nil, err
		}
		args = append(args, arg)

		tok := p.advance()
		switch tok.Type {
		case COMMA:
			continue
		case RPAREN:
			return args, nil
		default:
			return nil, p.unexpected(tok, `"," or ")"`)
		}
	}
}

func (p *Parser) lookupParam(name string) *ast.Param {
	for i := len(p.scope) - 1; i >= 0; i-- {
		if p.scope[i].Name == name {
			return p.scope[i]
		}
	}
	return nil
}

// Helper methods

func (p *Parser) peek() Token {
	return p.peekAt(0)
}

func (p *Parser) peekAt(offset int) Token {
	if p.pos+offset >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+offset]
}

func (p *Parser) advance() Token {
	tok := p.peek()
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return tok
}

func (p *Parser) position(tok Token) ast.Position {
	return ast.Position{Offset: tok.Start, Line: tok.Line, Column: tok.Column}
}

// unquote strips the delimiters of a string token and resolves escapes.
func unquote(text string) string {
	body := text[1 : len(text)-1]
	if !strings.ContainsRune(body, '\\') {
		return body
	}

	var buf strings.Builder
	buf.Grow(len(body))
	for i := 0; i < len(body); i++ {
		ch := body[i]
		if ch != '\\' || i+1 >= len(body) {
			buf.WriteByte(ch)
			continue
		}
		i++
		switch body[i] {
		case 'n':
			buf.WriteByte('\n')
		case 't':
			buf.WriteByte('\t')
		case 'r':
			buf.WriteByte('\r')
		default:
			buf.WriteByte(body[i])
		}
	}
	return buf.String()
}
