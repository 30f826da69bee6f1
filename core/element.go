package core

import (
	"strconv"
	"strings"
)

// Addr is the opaque address of a graph element. The zero value never refers
// to a live element.
type Addr uint64

// IsValid reports whether the address may refer to a live element.
func (a Addr) IsValid() bool { return a != 0 }

// String returns the decimal form of the address.
func (a Addr) String() string { return strconv.FormatUint(uint64(a), 10) }

// Type is a bitmask describing the kind of a graph element. A type combines a
// syntactic kind (node, link, arc, common edge) with semantic flags such as
// constancy, permanency and polarity.
type Type uint32

const (
	// TypeNode marks a plain node.
	TypeNode Type = 1 << iota
	// TypeLink marks a node carrying content.
	TypeLink
	// TypeCommonEdge marks an undirected connector.
	TypeCommonEdge
	// TypeCommonArc marks a directed non-membership connector.
	TypeCommonArc
	// TypeMembershipArc marks a directed membership (access) connector.
	TypeMembershipArc

	// TypeConst marks a constant element.
	TypeConst
	// TypeVar marks a variable element.
	TypeVar

	// TypePerm marks a permanent membership.
	TypePerm
	// TypeTemp marks a temporary membership.
	TypeTemp
	// TypePos marks a positive membership.
	TypePos
	// TypeNeg marks a negative membership.
	TypeNeg

	// TypeStructure marks a node denoting a structure.
	TypeStructure
	// TypeClass marks a node denoting a class.
	TypeClass
	// TypeRole marks a node denoting a role relation.
	TypeRole
	// TypeNoRole marks a node denoting a non-role relation.
	TypeNoRole
)

const (
	kindMask      = TypeNode | TypeLink | TypeCommonEdge | TypeCommonArc | TypeMembershipArc
	connectorMask = TypeCommonEdge | TypeCommonArc | TypeMembershipArc
	constancyMask = TypeConst | TypeVar
)

// Common element types.
const (
	ConstNode          = TypeNode | TypeConst
	VarNode            = TypeNode | TypeVar
	ConstNodeClass     = TypeNode | TypeConst | TypeClass
	ConstNodeStructure = TypeNode | TypeConst | TypeStructure
	VarNodeStructure   = TypeNode | TypeVar | TypeStructure
	ConstNodeRole      = TypeNode | TypeConst | TypeRole
	ConstNodeNoRole    = TypeNode | TypeConst | TypeNoRole
	ConstNodeLink      = TypeLink | TypeConst

	ConstPermPosArc = TypeMembershipArc | TypeConst | TypePerm | TypePos
	VarPermPosArc   = TypeMembershipArc | TypeVar | TypePerm | TypePos
	ConstTempPosArc = TypeMembershipArc | TypeConst | TypeTemp | TypePos
	ConstPermNegArc = TypeMembershipArc | TypeConst | TypePerm | TypeNeg
	ConstCommonArc  = TypeCommonArc | TypeConst
	ConstCommonEdge = TypeCommonEdge | TypeConst
)

// IsNode reports whether t describes a node or a link.
func (t Type) IsNode() bool { return t&(TypeNode|TypeLink) != 0 }

// IsLink reports whether t describes a link.
func (t Type) IsLink() bool { return t&TypeLink != 0 }

// IsConnector reports whether t describes an arc or a common edge.
func (t Type) IsConnector() bool { return t&connectorMask != 0 }

// IsArc reports whether t describes a directed connector.
func (t Type) IsArc() bool { return t&(TypeCommonArc|TypeMembershipArc) != 0 }

// IsEdge reports whether t describes an undirected connector.
func (t Type) IsEdge() bool { return t&TypeCommonEdge != 0 }

// IsStructure reports whether t describes a structure node.
func (t Type) IsStructure() bool { return t&TypeNode != 0 && t&TypeStructure != 0 }

// IsValid reports whether t names exactly one syntactic kind.
func (t Type) IsValid() bool {
	k := t & kindMask
	return k != 0 && k&(k-1) == 0
}

// Matches reports whether an element of type t satisfies the pattern type p.
// Constancy flags on the pattern are ignored so that variable pattern types
// match constant elements. The zero pattern matches every element.
func (t Type) Matches(p Type) bool {
	p &^= constancyMask
	return t&p == p
}

var typeNames = []struct {
	t    Type
	name string
}{
	{TypeNode, "node"},
	{TypeLink, "link"},
	{TypeCommonEdge, "edge"},
	{TypeCommonArc, "common_arc"},
	{TypeMembershipArc, "arc"},
	{TypeConst, "const"},
	{TypeVar, "var"},
	{TypePerm, "perm"},
	{TypeTemp, "temp"},
	{TypePos, "pos"},
	{TypeNeg, "neg"},
	{TypeStructure, "structure"},
	{TypeClass, "class"},
	{TypeRole, "role"},
	{TypeNoRole, "norole"},
}

// String renders the set flags joined by '|'.
func (t Type) String() string {
	if t == 0 {
		return "unknown"
	}
	var parts []string
	for _, n := range typeNames {
		if t&n.t != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Triple is a connector together with its endpoints.
type Triple struct {
	Source    Addr
	Connector Addr
	Target    Addr
}

// Pattern selects connectors by endpoint and type. Zero-valued endpoints act
// as wildcards; the zero Type matches any connector.
type Pattern struct {
	Source Addr
	Type   Type
	Target Addr
}
