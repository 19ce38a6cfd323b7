package main

import "strconv"

// SymbolScope holds the symbols declared in one block and links to the
// enclosing scope. FreeVariables keeps insertion order; the same order is
// used for procedure parameter lists and call-site argument lists.
type SymbolScope struct {
	Constants     map[string]int
	Variables     map[string]bool
	Procedures    map[string]*Node
	FreeVariables []string
	Outer         *SymbolScope

	freeSeen map[string]bool
}

func newSymbolScope(outer *SymbolScope) *SymbolScope {
	return &SymbolScope{
		Constants:  map[string]int{},
		Variables:  map[string]bool{},
		Procedures: map[string]*Node{},
		Outer:      outer,
		freeSeen:   map[string]bool{},
	}
}

func (s *SymbolScope) hasSymbol(ident string, extend bool) bool {
	if _, ok := s.Constants[ident]; ok {
		return true
	}
	if s.Variables[ident] {
		return true
	}
	if extend && s.Outer != nil {
		return s.Outer.hasSymbol(ident, true)
	}
	return false
}

func (s *SymbolScope) hasConstant(ident string) bool {
	if _, ok := s.Constants[ident]; ok {
		return true
	}
	return s.Outer != nil && s.Outer.hasConstant(ident)
}

func (s *SymbolScope) hasVariable(ident string) bool {
	if s.Variables[ident] {
		return true
	}
	return s.Outer != nil && s.Outer.hasVariable(ident)
}

func (s *SymbolScope) hasProcedure(ident string) bool {
	if _, ok := s.Procedures[ident]; ok {
		return true
	}
	return s.Outer != nil && s.Outer.hasProcedure(ident)
}

func (s *SymbolScope) getProcedure(ident string) *Node {
	if block, ok := s.Procedures[ident]; ok {
		return block
	}
	return s.Outer.getProcedure(ident)
}

func (s *SymbolScope) addFreeVariable(ident string) {
	if !s.freeSeen[ident] {
		s.freeSeen[ident] = true
		s.FreeVariables = append(s.FreeVariables, ident)
	}
}

// BuildSymbolTable runs the analysis pass over the parsed AST: it creates a
// scope per block, checks every declaration and use, and records the free
// variables of each block.
func BuildSymbolTable(ast *Node) error {
	return buildOnAST(ast, nil)
}

func buildOnAST(n *Node, scope *SymbolScope) error {
	switch n.Tag {
	case TagBlock:
		return buildBlock(n, scope)
	case TagAssignment:
		return buildAssignment(n, scope)
	case TagCall:
		return buildCall(n, scope)
	case TagIdent:
		return buildIdent(n, scope)
	default:
		for _, child := range n.Children {
			if err := buildOnAST(child, scope); err != nil {
				return err
			}
		}
		return nil
	}
}

func buildBlock(n *Node, outer *SymbolScope) error {
	scope := newSymbolScope(outer)
	nodes := n.Children
	if err := buildConstants(nodes[0], scope); err != nil {
		return err
	}
	if err := buildVariables(nodes[1], scope); err != nil {
		return err
	}
	if err := buildProcedures(nodes[2], scope); err != nil {
		return err
	}
	if err := buildOnAST(nodes[3], scope); err != nil {
		return err
	}
	n.Scope = scope
	return nil
}

func buildConstants(n *Node, scope *SymbolScope) error {
	nodes := n.Children
	for i := 0; i < len(nodes); i += 2 {
		ident := nodes[i].Token
		if scope.hasSymbol(ident, true) {
			return nodeErrorf(nodes[i], "'%s' is already defined...", ident)
		}
		number, err := strconv.Atoi(nodes[i+1].Token)
		if err != nil {
			return nodeErrorf(nodes[i+1], "invalid number '%s'", nodes[i+1].Token)
		}
		scope.Constants[ident] = number
	}
	return nil
}

func buildVariables(n *Node, scope *SymbolScope) error {
	for _, node := range n.Children {
		ident := node.Token
		if scope.hasSymbol(ident, true) {
			return nodeErrorf(node, "'%s' is already defined...", ident)
		}
		scope.Variables[ident] = true
	}
	return nil
}

// buildProcedures registers each procedure in the scope, then analyzes its
// body. A procedure therefore may call earlier siblings but not later ones,
// and a self-call finds a body whose scope is not attached yet.
func buildProcedures(n *Node, scope *SymbolScope) error {
	nodes := n.Children
	for i := 0; i < len(nodes); i += 2 {
		ident := nodes[i].Token
		block := nodes[i+1]
		scope.Procedures[ident] = block
		if err := buildOnAST(block, scope); err != nil {
			return err
		}
	}
	return nil
}

func buildAssignment(n *Node, scope *SymbolScope) error {
	ident := n.Children[0].Token
	if scope.hasConstant(ident) {
		return nodeErrorf(n.Children[0], "cannot modify constant value '%s'...", ident)
	} else if !scope.hasVariable(ident) {
		return nodeErrorf(n.Children[0], "undefined variable '%s'...", ident)
	}

	if err := buildOnAST(n.Children[1], scope); err != nil {
		return err
	}

	if !scope.hasSymbol(ident, false) {
		scope.addFreeVariable(ident)
	}
	return nil
}

func buildCall(n *Node, scope *SymbolScope) error {
	ident := n.Children[0].Token
	if !scope.hasProcedure(ident) {
		return nodeErrorf(n.Children[0], "undefined procedure '%s'...", ident)
	}

	block := scope.getProcedure(ident)
	if block.Scope != nil {
		for _, free := range block.Scope.FreeVariables {
			if !scope.hasSymbol(free, false) {
				scope.addFreeVariable(free)
			}
		}
	}
	return nil
}

func buildIdent(n *Node, scope *SymbolScope) error {
	ident := n.Token
	if !scope.hasSymbol(ident, true) {
		return nodeErrorf(n, "undefined variable '%s'...", ident)
	}

	if !scope.hasSymbol(ident, false) {
		scope.addFreeVariable(ident)
	}
	return nil
}
