// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// Package ast defines the DATA-step syntax tree.
//
// Nodes live in an Arena and refer to each other by NodeID. A tree is built
// once by the parser and never changed afterwards, so one compiled step can
// be executed any number of times without copying. The zero NodeID is
// reserved and means "no node".
//
// Every node has a Kind from a closed set. Consumers switch on Kind and
// treat an unknown kind as a programming error.
package ast

import (
	"fmt"

	"nickandperla.net/dstep/internal/token"
)

// NodeID addresses a node within its Arena.
type NodeID int32

// None is the absent node.
const None NodeID = 0

// Kind identifies the variant of a node.
type Kind uint8

const (
	Invalid Kind = iota

	// Expressions
	NumberLiteral
	TextLiteral
	MissingLiteral
	VariableRef
	ArrayRef
	UnaryOp
	BinaryOp
	FunctionCall

	// Statements
	Assignment
	IfThenElse
	IndexedDo
	WhileDo
	UntilDo
	Leave
	Continue
	Output
	Delete
	RetainDecl
	ArrayDecl
	DropDecl
	KeepDecl
	FormatDecl
	Block

	kindCount
)

var kindNames = [...]string{
	Invalid:        "Invalid",
	NumberLiteral:  "NumberLiteral",
	TextLiteral:    "TextLiteral",
	MissingLiteral: "MissingLiteral",
	VariableRef:    "VariableRef",
	ArrayRef:       "ArrayRef",
	UnaryOp:        "UnaryOp",
	BinaryOp:       "BinaryOp",
	FunctionCall:   "FunctionCall",
	Assignment:     "Assignment",
	IfThenElse:     "IfThenElse",
	IndexedDo:      "IndexedDo",
	WhileDo:        "WhileDo",
	UntilDo:        "UntilDo",
	Leave:          "Leave",
	Continue:       "Continue",
	Output:         "Output",
	Delete:         "Delete",
	RetainDecl:     "RetainDecl",
	ArrayDecl:      "ArrayDecl",
	DropDecl:       "DropDecl",
	KeepDecl:       "KeepDecl",
	FormatDecl:     "FormatDecl",
	Block:          "Block",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// IsExpr reports whether nodes of kind k produce a value.
func (k Kind) IsExpr() bool {
	return k >= NumberLiteral && k <= FunctionCall
}

// IsStmt reports whether nodes of kind k are statements.
func (k Kind) IsStmt() bool {
	return k >= Assignment && k < kindCount
}

// Kinds returns every valid node kind.
func Kinds() []Kind {
	out := make([]Kind, 0, kindCount-1)
	for k := NumberLiteral; k < kindCount; k++ {
		out = append(out, k)
	}
	return out
}

// Pos is a source position.
type Pos struct {
	Line int
	Col  int
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// Node is one syntax tree node. Which fields are meaningful depends on Kind:
//
//	NumberLiteral   Num
//	TextLiteral     Text
//	VariableRef     Name
//	ArrayRef        Name, Args (subscripts)
//	UnaryOp         Op, Left (operand)
//	BinaryOp        Op, Left, Right
//	FunctionCall    Name, Args
//	Assignment      Left (VariableRef or ArrayRef target), Right (value)
//	IfThenElse      Cond, Then, Else (may be None)
//	IndexedDo       Name (loop variable), Start, Stop, Step (may be None), Body
//	WhileDo         Cond, Body
//	UntilDo         Cond, Body
//	RetainDecl      Names, Args (initial values aligned with Names, None when absent)
//	ArrayDecl       Name, Dims (0 for "*"), Names
//	DropDecl        Names
//	KeepDecl        Names
//	FormatDecl      Names, Specs (aligned with Names)
//	Block           Args (statements)
type Node struct {
	Kind  Kind
	Pos   Pos
	Op    token.Token
	Num   float64
	Text  string
	Name  string
	Names []string
	Specs []string
	Dims  []int
	Args  []NodeID

	Left, Right       NodeID
	Cond, Then, Else  NodeID
	Start, Stop, Step NodeID
	Body              NodeID
}

// Arena owns the nodes of one tree.
type Arena struct {
	nodes []Node
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{nodes: make([]Node, 1)}
}

// Len returns the number of nodes, not counting the reserved slot.
func (a *Arena) Len() int { return len(a.nodes) - 1 }

// Node returns the node with the given id. The result must not be modified.
func (a *Arena) Node(id NodeID) *Node {
	if id <= None || int(id) >= len(a.nodes) {
		panic(fmt.Sprintf("ast: invalid node id %d", id))
	}
	return &a.nodes[id]
}

// Add appends a node and returns its id.
func (a *Arena) Add(n Node) NodeID {
	if n.Kind == Invalid || n.Kind >= kindCount {
		panic(fmt.Sprintf("ast: cannot add node of kind %s", n.Kind))
	}
	a.nodes = append(a.nodes, n)
	return NodeID(len(a.nodes) - 1)
}

// Number adds a numeric literal.
func (a *Arena) Number(pos Pos, f float64) NodeID {
	return a.Add(Node{Kind: NumberLiteral, Pos: pos, Num: f})
}

// String adds a text literal.
func (a *Arena) String(pos Pos, s string) NodeID {
	return a.Add(Node{Kind: TextLiteral, Pos: pos, Text: s})
}

// Missing adds a missing-value literal.
func (a *Arena) Missing(pos Pos) NodeID {
	return a.Add(Node{Kind: MissingLiteral, Pos: pos})
}

// Var adds a variable reference.
func (a *Arena) Var(pos Pos, name string) NodeID {
	return a.Add(Node{Kind: VariableRef, Pos: pos, Name: name})
}

// Index adds an array element reference.
func (a *Arena) Index(pos Pos, array string, subscripts ...NodeID) NodeID {
	return a.Add(Node{Kind: ArrayRef, Pos: pos, Name: array, Args: subscripts})
}

// Unary adds a prefix operator application.
func (a *Arena) Unary(pos Pos, op token.Token, x NodeID) NodeID {
	return a.Add(Node{Kind: UnaryOp, Pos: pos, Op: op, Left: x})
}

// Binary adds an infix operator application.
func (a *Arena) Binary(pos Pos, op token.Token, l, r NodeID) NodeID {
	return a.Add(Node{Kind: BinaryOp, Pos: pos, Op: op, Left: l, Right: r})
}

// Call adds a function call.
func (a *Arena) Call(pos Pos, name string, args ...NodeID) NodeID {
	return a.Add(Node{Kind: FunctionCall, Pos: pos, Name: name, Args: args})
}

// Assign adds an assignment to a variable or array element.
func (a *Arena) Assign(pos Pos, target, val NodeID) NodeID {
	return a.Add(Node{Kind: Assignment, Pos: pos, Left: target, Right: val})
}

// If adds a conditional. els may be None.
func (a *Arena) If(pos Pos, cond, then, els NodeID) NodeID {
	return a.Add(Node{Kind: IfThenElse, Pos: pos, Cond: cond, Then: then, Else: els})
}

// DoIndexed adds an iterative DO loop. step may be None (meaning 1).
func (a *Arena) DoIndexed(pos Pos, variable string, start, stop, step, body NodeID) NodeID {
	return a.Add(Node{Kind: IndexedDo, Pos: pos, Name: variable, Start: start, Stop: stop, Step: step, Body: body})
}

// DoWhile adds a pre-tested loop.
func (a *Arena) DoWhile(pos Pos, cond, body NodeID) NodeID {
	return a.Add(Node{Kind: WhileDo, Pos: pos, Cond: cond, Body: body})
}

// DoUntil adds a post-tested loop.
func (a *Arena) DoUntil(pos Pos, cond, body NodeID) NodeID {
	return a.Add(Node{Kind: UntilDo, Pos: pos, Cond: cond, Body: body})
}

// Simple adds a statement without operands: Leave, Continue, Output or
// Delete.
func (a *Arena) Simple(pos Pos, kind Kind) NodeID {
	switch kind {
	case Leave, Continue, Output, Delete:
	default:
		panic(fmt.Sprintf("ast: %s is not a simple statement", kind))
	}
	return a.Add(Node{Kind: kind, Pos: pos})
}

// Retain adds a RETAIN declaration. inits is aligned with names; entries
// may be None.
func (a *Arena) Retain(pos Pos, names []string, inits []NodeID) NodeID {
	return a.Add(Node{Kind: RetainDecl, Pos: pos, Names: names, Args: inits})
}

// Array adds an ARRAY declaration. A zero dimension stands for "*".
func (a *Arena) Array(pos Pos, name string, dims []int, names []string) NodeID {
	return a.Add(Node{Kind: ArrayDecl, Pos: pos, Name: name, Dims: dims, Names: names})
}

// Drop adds a DROP declaration.
func (a *Arena) Drop(pos Pos, names []string) NodeID {
	return a.Add(Node{Kind: DropDecl, Pos: pos, Names: names})
}

// Keep adds a KEEP declaration.
func (a *Arena) Keep(pos Pos, names []string) NodeID {
	return a.Add(Node{Kind: KeepDecl, Pos: pos, Names: names})
}

// Format adds a FORMAT declaration.
func (a *Arena) Format(pos Pos, names, specs []string) NodeID {
	return a.Add(Node{Kind: FormatDecl, Pos: pos, Names: names, Specs: specs})
}

// Block adds an ordered statement list.
func (a *Arena) Block(pos Pos, stmts ...NodeID) NodeID {
	return a.Add(Node{Kind: Block, Pos: pos, Args: stmts})
}

// Children returns the child node ids of n in source order.
func Children(n *Node) []NodeID {
	var out []NodeID
	add := func(ids ...NodeID) {
		for _, id := range ids {
			if id != None {
				out = append(out, id)
			}
		}
	}
	switch n.Kind {
	case NumberLiteral, TextLiteral, MissingLiteral, VariableRef,
		Leave, Continue, Output, Delete, ArrayDecl, DropDecl, KeepDecl, FormatDecl:
	case ArrayRef, FunctionCall, Block, RetainDecl:
		add(n.Args...)
	case UnaryOp:
		add(n.Left)
	case BinaryOp, Assignment:
		add(n.Left, n.Right)
	case IfThenElse:
		add(n.Cond, n.Then, n.Else)
	case IndexedDo:
		add(n.Start, n.Stop, n.Step, n.Body)
	case WhileDo, UntilDo:
		add(n.Cond, n.Body)
	default:
		panic(fmt.Sprintf("ast: unhandled kind %s", n.Kind))
	}
	return out
}

// Walk visits id and its descendants depth-first in source order. When fn
// returns false the children of that node are skipped.
func (a *Arena) Walk(id NodeID, fn func(id NodeID, n *Node) bool) {
	if id == None {
		return
	}
	n := a.Node(id)
	if !fn(id, n) {
		return
	}
	for _, c := range Children(n) {
		a.Walk(c, fn)
	}
}
