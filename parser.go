package main

import "errors"

// parseLogger, when set, receives the position and message of every syntax
// error before ParseProgram fails.
var parseLogger func(line, col int, msg string)

func syntaxError(msg string) error {
	if parseLogger != nil {
		parseLogger(CurrLine, CurrCol, msg)
	}
	return errors.New(formatErrorMessage(srcPath, CurrLine, CurrCol, msg))
}

func newNode(tag Tag) *Node {
	return &Node{Tag: tag, Path: srcPath, Line: CurrLine, Column: CurrCol}
}

func expect(tt TokenType) error {
	if CurrTokenType != tt {
		return syntaxError("expected " + string(tt) + ", got " + string(CurrTokenType))
	}
	NextToken()
	return nil
}

// ParseProgram parses the whole input. The lexer must have been initialized
// with Init; ParseProgram reads the first token itself.
func ParseProgram() (*Node, error) {
	NextToken()

	program := newNode(TagProgram)
	block, err := parseBlock()
	if err != nil {
		return nil, err
	}
	program.add(block)

	if err := expect(PERIOD); err != nil {
		return nil, err
	}
	if CurrTokenType != EOF {
		return nil, syntaxError("expected end of input, got " + string(CurrTokenType))
	}
	return program, nil
}

// parseBlock builds a block node with exactly four children: the const,
// var and procedure declaration groups followed by the statement. The
// analyzer and the emitter index into this shape.
func parseBlock() (*Node, error) {
	block := newNode(TagBlock)

	consts := newNode(TagConst)
	if CurrTokenType == CONST {
		NextToken()
		for {
			id, err := parseIdent()
			if err != nil {
				return nil, err
			}
			if err := expect(EQ); err != nil {
				return nil, err
			}
			num, err := parseNumber()
			if err != nil {
				return nil, err
			}
			consts.add(id)
			consts.add(num)
			if CurrTokenType != COMMA {
				break
			}
			NextToken()
		}
		if err := expect(SEMICOLON); err != nil {
			return nil, err
		}
	}
	block.add(consts)

	vars := newNode(TagVar)
	if CurrTokenType == VAR {
		NextToken()
		for {
			id, err := parseIdent()
			if err != nil {
				return nil, err
			}
			vars.add(id)
			if CurrTokenType != COMMA {
				break
			}
			NextToken()
		}
		if err := expect(SEMICOLON); err != nil {
			return nil, err
		}
	}
	block.add(vars)

	procs := newNode(TagProcedure)
	for CurrTokenType == PROCEDURE {
		NextToken()
		id, err := parseIdent()
		if err != nil {
			return nil, err
		}
		if err := expect(SEMICOLON); err != nil {
			return nil, err
		}
		body, err := parseBlock()
		if err != nil {
			return nil, err
		}
		if err := expect(SEMICOLON); err != nil {
			return nil, err
		}
		procs.add(id)
		procs.add(body)
	}
	block.add(procs)

	stmt, err := parseStatement()
	if err != nil {
		return nil, err
	}
	block.add(stmt)

	return block, nil
}

// parseStatement builds a statement node with zero or one child; the empty
// statement is valid PL/0.
func parseStatement() (*Node, error) {
	stmt := newNode(TagStatement)

	switch CurrTokenType {
	case IDENT:
		assign := newNode(TagAssignment)
		id, err := parseIdent()
		if err != nil {
			return nil, err
		}
		if err := expect(ASSIGN); err != nil {
			return nil, err
		}
		expr, err := parseExpression()
		if err != nil {
			return nil, err
		}
		assign.add(id)
		assign.add(expr)
		stmt.add(assign)

	case CALL:
		call := newNode(TagCall)
		NextToken()
		id, err := parseIdent()
		if err != nil {
			return nil, err
		}
		call.add(id)
		stmt.add(call)

	case BEGIN:
		stmts := newNode(TagStatements)
		NextToken()
		first, err := parseStatement()
		if err != nil {
			return nil, err
		}
		stmts.add(first)
		for CurrTokenType == SEMICOLON {
			NextToken()
			next, err := parseStatement()
			if err != nil {
				return nil, err
			}
			stmts.add(next)
		}
		if err := expect(END); err != nil {
			return nil, err
		}
		stmt.add(stmts)

	case IF:
		ifNode := newNode(TagIf)
		NextToken()
		cond, err := parseCondition()
		if err != nil {
			return nil, err
		}
		if err := expect(THEN); err != nil {
			return nil, err
		}
		body, err := parseStatement()
		if err != nil {
			return nil, err
		}
		ifNode.add(cond)
		ifNode.add(body)
		stmt.add(ifNode)

	case WHILE:
		whileNode := newNode(TagWhile)
		NextToken()
		cond, err := parseCondition()
		if err != nil {
			return nil, err
		}
		if err := expect(DO); err != nil {
			return nil, err
		}
		body, err := parseStatement()
		if err != nil {
			return nil, err
		}
		whileNode.add(cond)
		whileNode.add(body)
		stmt.add(whileNode)

	case BANG:
		out := newNode(TagOut)
		NextToken()
		expr, err := parseExpression()
		if err != nil {
			return nil, err
		}
		out.add(expr)
		stmt.add(out)
	}

	return stmt, nil
}

func parseCondition() (*Node, error) {
	cond := newNode(TagCondition)

	if CurrTokenType == ODD {
		odd := newNode(TagOdd)
		NextToken()
		expr, err := parseExpression()
		if err != nil {
			return nil, err
		}
		odd.add(expr)
		cond.add(odd)
		return cond, nil
	}

	compare := newNode(TagCompare)
	lhs, err := parseExpression()
	if err != nil {
		return nil, err
	}
	op := newNode(TagRelOp)
	switch CurrTokenType {
	case EQ, HASH, LT, LE, GT, GE:
		op.Token = CurrLiteral
		NextToken()
	default:
		return nil, syntaxError("expected comparison operator, got " + string(CurrTokenType))
	}
	rhs, err := parseExpression()
	if err != nil {
		return nil, err
	}
	compare.add(lhs)
	compare.add(op)
	compare.add(rhs)
	cond.add(compare)
	return cond, nil
}

// parseExpression builds an expression node whose children are a sign node,
// the first term, then (addop, term) pairs.
func parseExpression() (*Node, error) {
	expr := newNode(TagExpression)

	sign := newNode(TagSign)
	if CurrTokenType == PLUS || CurrTokenType == MINUS {
		sign.Token = CurrLiteral
		NextToken()
	}
	expr.add(sign)

	term, err := parseTerm()
	if err != nil {
		return nil, err
	}
	expr.add(term)

	for CurrTokenType == PLUS || CurrTokenType == MINUS {
		op := newNode(TagAddOp)
		op.Token = CurrLiteral
		NextToken()
		next, err := parseTerm()
		if err != nil {
			return nil, err
		}
		expr.add(op)
		expr.add(next)
	}
	return expr, nil
}

func parseTerm() (*Node, error) {
	term := newNode(TagTerm)

	factor, err := parseFactor()
	if err != nil {
		return nil, err
	}
	term.add(factor)

	for CurrTokenType == ASTERISK || CurrTokenType == SLASH {
		op := newNode(TagMulOp)
		op.Token = CurrLiteral
		NextToken()
		next, err := parseFactor()
		if err != nil {
			return nil, err
		}
		term.add(op)
		term.add(next)
	}
	return term, nil
}

func parseFactor() (*Node, error) {
	factor := newNode(TagFactor)

	switch CurrTokenType {
	case IDENT:
		id, err := parseIdent()
		if err != nil {
			return nil, err
		}
		factor.add(id)

	case NUMBER:
		num, err := parseNumber()
		if err != nil {
			return nil, err
		}
		factor.add(num)

	case LPAREN:
		NextToken()
		expr, err := parseExpression()
		if err != nil {
			return nil, err
		}
		if err := expect(RPAREN); err != nil {
			return nil, err
		}
		factor.add(expr)

	default:
		return nil, syntaxError("expected identifier, number or '(', got " + string(CurrTokenType))
	}
	return factor, nil
}

func parseIdent() (*Node, error) {
	if CurrTokenType != IDENT {
		return nil, syntaxError("expected identifier, got " + string(CurrTokenType))
	}
	id := newNode(TagIdent)
	id.Token = CurrLiteral
	NextToken()
	return id, nil
}

func parseNumber() (*Node, error) {
	if CurrTokenType != NUMBER {
		return nil, syntaxError("expected number, got " + string(CurrTokenType))
	}
	num := newNode(TagNumber)
	num.Token = CurrLiteral
	NextToken()
	return num, nil
}
